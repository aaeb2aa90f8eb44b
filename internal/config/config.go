package config

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	Database    Database `envPrefix:"DB_"`

	Stripe   Stripe   `envPrefix:"STRIPE_"`
	Frontend Frontend `envPrefix:"FRONTEND_"`
	Platform Platform `envPrefix:"PLATFORM_"`
	Auth     Auth     `envPrefix:"AUTH_"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

type Database struct {
	// Driver is "mysql" or "sqlite".
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DSN" envDefault:"commerce.db"`
}

type Stripe struct {
	BaseApiURL    string `env:"BASE_API_URL" envDefault:"https://api.stripe.com"`
	SecretKey     string `env:"SECRET_KEY"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
}

type Frontend struct {
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:3000"`
}

type Platform struct {
	// DefaultFeePercent applies when a shop has no override.
	DefaultFeePercent float64 `env:"DEFAULT_FEE_PERCENT" envDefault:"15.0"`
	CheckoutTTLHours  int     `env:"CHECKOUT_TTL_HOURS" envDefault:"24"`
	// SweepIntervalMinutes drives the expired-session / stale-KYC sweeps.
	SweepIntervalMinutes int `env:"SWEEP_INTERVAL_MINUTES" envDefault:"30"`
}

type Auth struct {
	JWTSecret string `env:"JWT_SECRET"`
}
