package deploy

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// nonceVar is the env var rotated to force a fresh revision.
const nonceVar = "COLDBENCH_NONCE"

// Redeployer forces a fresh deployment of a managed container service by
// setting an environment variable to a new random value. Used between
// experiment variants so measurements never reuse a stale revision.
type Redeployer struct {
	CLI    string // defaults to gcloud
	Region string

	// run is injected for tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
	log *logrus.Entry
}

func New(region string) *Redeployer {
	return &Redeployer{
		CLI:    "gcloud",
		Region: region,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
		log: logrus.WithField("component", "deploy"),
	}
}

// Redeploy rotates the nonce env var on the named service and returns the
// nonce it deployed. The CLI invocation is retried a few times; cloud CLIs
// fail transiently often enough that a single attempt is not reliable.
func (d *Redeployer) Redeploy(ctx context.Context, service string) (string, error) {
	nonce := uuid.New().String()
	args := []string{"run", "services", "update", service, "--update-env-vars", nonceVar + "=" + nonce}
	if d.Region != "" {
		args = append(args, "--region", d.Region)
	}

	d.log.WithFields(logrus.Fields{"service": service, "nonce": nonce}).Info("redeploying")

	err := retry.Do(
		func() error {
			out, err := d.run(ctx, d.CLI, args...)
			if err != nil {
				return errors.Wrapf(err, "updating %s: %s", service, bytes.TrimSpace(out))
			}
			return nil
		},
		retry.Attempts(3),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", err
	}
	return nonce, nil
}
