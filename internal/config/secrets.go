package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Secrets holds the out-of-band credentials loaded from the environment
// file. Values must never appear in log output.
type Secrets struct {
	// AgentSecret authenticates the build agent against the server.
	AgentSecret string
	// SMTPPassword authenticates the alert mail submission.
	SMTPPassword string
}

// agentSecretVar returns the env variable name that carries the agent
// secret for the given platform key ("linux" -> LINUX_AGENT_SECRET).
func agentSecretVar(platform string) string {
	return strings.ToUpper(platform) + "_AGENT_SECRET"
}

// LoadSecrets loads the env file at path (falling back to already-exported
// environment variables if the file is absent) and extracts the secrets
// for the given platform. A missing agent secret is a fatal configuration
// error: it must surface before any service action is attempted.
func LoadSecrets(path, platform string) (Secrets, error) {
	if path != "" {
		// Variables already present in the environment win; the file
		// only fills gaps. A missing file is fine as long as the
		// required variables are exported some other way.
		_ = godotenv.Load(path)
	}

	s := Secrets{
		AgentSecret:  os.Getenv(agentSecretVar(platform)),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
	}

	if s.AgentSecret == "" {
		return Secrets{}, &ConfigurationError{
			Field:  agentSecretVar(platform),
			Reason: "not set in environment or env file",
		}
	}
	if s.SMTPPassword == "" {
		return Secrets{}, &ConfigurationError{
			Field:  "SMTP_PASSWORD",
			Reason: "not set in environment or env file",
		}
	}
	return s, nil
}
