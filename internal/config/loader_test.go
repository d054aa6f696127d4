package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnvWithDefaults(t *testing.T) {
	t.Setenv("TEST_MILVUS_HOST", "milvus.internal")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "set variable wins over default",
			input: "host: ${TEST_MILVUS_HOST:localhost}",
			want:  "host: milvus.internal",
		},
		{
			name:  "unset variable falls back to default",
			input: "port: ${TEST_UNSET_PORT:19530}",
			want:  "port: 19530",
		},
		{
			name:  "empty default",
			input: "password: ${TEST_UNSET_PASSWORD:}",
			want:  "password: ",
		},
		{
			name:  "unset variable without default keeps placeholder",
			input: "token: ${TEST_UNSET_TOKEN}",
			want:  "token: ${TEST_UNSET_TOKEN}",
		},
		{
			name:  "multiple placeholders in one line",
			input: "addr: ${TEST_MILVUS_HOST:localhost}:${TEST_UNSET_PORT:19530}",
			want:  "addr: milvus.internal:19530",
		},
		{
			name:  "plain text untouched",
			input: "name: shakespeare-quote-api",
			want:  "name: shakespeare-quote-api",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandEnv(tt.input))
		})
	}
}

func TestExpandEnvSetButEmptyVariable(t *testing.T) {
	t.Setenv("TEST_EMPTY_VAR", "")

	// 已设置的空变量优先于默认值
	assert.Equal(t, "env: ", expandEnv("env: ${TEST_EMPTY_VAR:development}"))
}
