package config

import (
	"net/url"
	"strconv"
	"time"
)

type DatabaseConfig struct {
	Host        string        `yaml:"host" env:"TNFS_DB_HOST" env-default:"localhost"`
	Port        int           `yaml:"port" env:"TNFS_DB_PORT" env-default:"5432"`
	User        string        `yaml:"user" env:"TNFS_DB_USER" env-default:"postgres"`
	Password    string        `yaml:"password" env:"TNFS_DB_PASSWORD"`
	Name        string        `yaml:"name" env:"TNFS_DB_NAME" env-default:"tnfs"`
	SSLMode     string        `yaml:"sslmode" env:"TNFS_DB_SSLMODE" env-default:"disable"`
	MaxConns    int           `yaml:"max_conns" env:"TNFS_DB_MAX_CONNS" env-default:"8"`
	LockTimeout time.Duration `yaml:"lock_timeout" env:"TNFS_DB_LOCK_TIMEOUT" env-default:"5s"`
}

func (c DatabaseConfig) DSN() string {
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	if c.MaxConns > 0 {
		q.Set("pool_max_conns", strconv.Itoa(c.MaxConns))
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Name,
		RawQuery: q.Encode(),
	}

	return u.String()
}
