package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "Defaults",
			cfg:  Config{Host: "localhost", Port: 3306, User: "root", Name: "asc_manager"},
			want: "root:@tcp(localhost:3306)/asc_manager?charset=utf8mb4&parseTime=True&loc=UTC&timeout=10s&readTimeout=10s&writeTimeout=10s",
		},
		{
			name: "EncodedPassword",
			cfg:  Config{Host: "db", Port: 3307, User: "asc", Password: "p@ss/word", Name: "runs", TimeoutSeconds: 5},
			want: "asc:p%40ss%2Fword@tcp(db:3307)/runs?charset=utf8mb4&parseTime=True&loc=UTC&timeout=5s&readTimeout=5s&writeTimeout=5s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DSN(tt.cfg))
		})
	}
}

func TestConnect(t *testing.T) {
	t.Run("Unreachable", func(t *testing.T) {
		db, err := Connect(Config{Host: "127.0.0.1", Port: 9, User: "root", Name: "asc_manager", TimeoutSeconds: 1})
		assert.Error(t, err)
		assert.Nil(t, db)
	})
}
