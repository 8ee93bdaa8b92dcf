package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "simple substitution with {{.VAR}}",
			input: "uri: {{.MONGO_URI}}",
			env:   map[string]string{"MONGO_URI": "mongodb://localhost:27017"},
			want:  "uri: mongodb://localhost:27017",
		},
		{
			name:  "mongo operator dollars are preserved",
			input: `filter: '{"leadStatus": {"$ne": null}}'`,
			env:   map[string]string{},
			want:  `filter: '{"leadStatus": {"$ne": null}}'`,
		},
		{
			name:  "literal ${VAR} is NOT expanded",
			input: "pattern: ${USER_ID}",
			env:   map[string]string{"USER_ID": "123"},
			want:  "pattern: ${USER_ID}",
		},
		{
			name:  "dollar in connection string password preserved",
			input: "uri: mongodb://app:p@ss$word@db:27017",
			env:   map[string]string{},
			want:  "uri: mongodb://app:p@ss$word@db:27017",
		},
		{
			name:  "multiple substitutions in one line",
			input: "auth: {{.API_CLIENT_ID}}:{{.API_CLIENT_SECRET}}",
			env: map[string]string{
				"API_CLIENT_ID":     "client",
				"API_CLIENT_SECRET": "secret",
			},
			want: "auth: client:secret",
		},
		{
			name:  "missing variable expands to empty",
			input: "api_key: {{.MISSING_VAR}}",
			env:   map[string]string{},
			want:  "api_key: ",
		},
		{
			name:  "no substitution when no variables",
			input: "database: crm",
			env:   map[string]string{"UNUSED": "value"},
			want:  "database: crm",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got := ExpandEnv([]byte(tt.input))
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestExpandEnv_MalformedTemplatePassesThrough(t *testing.T) {
	input := "value: {{.UNCLOSED"
	got := ExpandEnv([]byte(input))
	assert.Equal(t, input, string(got), "malformed template syntax should return original bytes")
}
