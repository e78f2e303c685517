package email

import "time"

// SMTPConfig holds SMTP transport settings.
type SMTPConfig struct {
	Host     string        `env:"HOST"`
	Port     int           `env:"PORT" envDefault:"587"`
	Username string        `env:"USERNAME"`
	Password string        `env:"PASSWORD"`
	From     string        `env:"FROM"`
	TLS      bool          `env:"TLS" envDefault:"true"`
	SSL      bool          `env:"SSL"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// Configured reports whether enough is set to reach a server.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Port > 0 && c.From != ""
}

// PostmarkConfig holds Postmark API credentials.
type PostmarkConfig struct {
	ServerToken  string `env:"SERVER_TOKEN"`
	AccountToken string `env:"ACCOUNT_TOKEN"`
	From         string `env:"FROM"`
	Tag          string `env:"TAG" envDefault:"notification"`
}

// Configured reports whether the server token and sender are set.
func (c PostmarkConfig) Configured() bool {
	return c.ServerToken != "" && c.From != ""
}
