package configuration

import (
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type (
	Properties struct {
		LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`

		API      APIProperties        `envPrefix:"API_"`
		Auth     AuthProperties       `envPrefix:"AUTH_"`
		S3       S3Properties         `envPrefix:"S3_"`
		Server   HttpServerProperties `envPrefix:"HTTP_"`
		MLServer MLServerProperties   `envPrefix:"ML_"`
		Upload   UploadProperties     `envPrefix:"UPLOAD_"`
		State    StateProperties      `envPrefix:"STATE_"`
	}

	APIProperties struct {
		BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8088"`
		// Chatbot host. Empty means BaseURL.
		ChatURL string `env:"CHAT_URL"`
		// Zero disables the client timeout.
		Timeout time.Duration `env:"TIMEOUT" envDefault:"0s"`
	}

	AuthProperties struct {
		// OIDC issuer. When empty the server falls back to HMAC tokens.
		Host      string   `env:"HOST"`
		ID        string   `env:"ID"`
		Secret    string   `env:"SECRET"`
		Scopes    []string `env:"SCOPES" envSeparator:"," envDefault:"openid,email"`
		JWTSecret string   `env:"JWT_SECRET"`
	}

	HttpServerProperties struct {
		Name         string        `env:"NAME" envDefault:"photogallery"`
		Port         string        `env:"PORT" envDefault:"8088"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
		AllowOrigins []string      `env:"ALLOW_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
		Pprof        bool          `env:"PPROF" envDefault:"false"`
		DBPath       string        `env:"DB_PATH" envDefault:"photogallery.db"`
	}

	MLServerProperties struct {
		Host    string        `env:"HOST"`
		Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
	}

	S3Properties struct {
		Host          string        `env:"HOST" envDefault:"localhost:9000"`
		AccessKey     string        `env:"ACCESS_KEY"`
		SecretKey     string        `env:"SECRET_KEY"`
		Bucket        string        `env:"BUCKET" envDefault:"photos"`
		UseSSL        bool          `env:"USE_SSL" envDefault:"false"`
		PresignExpiry time.Duration `env:"PRESIGN_EXPIRY" envDefault:"1h"`
	}

	UploadProperties struct {
		MaxDimension  uint          `env:"MAX_DIMENSION" envDefault:"1024"`
		MaxBytes      int           `env:"MAX_BYTES" envDefault:"1048576"`
		LabelStrategy string        `env:"LABEL_STRATEGY" envDefault:"backoff"`
		LabelDelay    time.Duration `env:"LABEL_DELAY" envDefault:"2s"`
		PollMin       time.Duration `env:"POLL_MIN" envDefault:"500ms"`
		PollMax       time.Duration `env:"POLL_MAX" envDefault:"8s"`
		PollAttempts  int           `env:"POLL_ATTEMPTS" envDefault:"6"`
	}

	StateProperties struct {
		Path string `env:"PATH" envDefault:"$HOME/.photogallery/state.db" envExpand:"true"`
	}
)

// ReadProperties loads an optional .env file and then parses the environment.
func ReadProperties() (*Properties, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrap(err, "load .env")
	}
	config := &Properties{}
	if err := env.Parse(config); err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return config, nil
}
