package postgresql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "all fields",
			cfg:  Config{Host: "localhost", Port: 5432, User: "postgres", Password: "secret", Database: "analysis_db", SSLMode: "disable"},
			want: "host='localhost' port='5432' user='postgres' password='secret' dbname='analysis_db' sslmode='disable'",
		},
		{
			name: "quotes and spaces are escaped",
			cfg:  Config{Host: "db", Port: 5432, User: "app", Password: `it's a \secret`, Database: "analysis_db"},
			want: `host='db' port='5432' user='app' password='it\'s a \\secret' dbname='analysis_db'`,
		},
		{
			name: "empty values are omitted",
			cfg:  Config{Host: "db", Port: 5432, Database: "analysis_db"},
			want: "host='db' port='5432' dbname='analysis_db'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.DSN())
		})
	}
}
