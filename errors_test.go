package pgfixture

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrors(t *testing.T) {
	cause := errors.New("cause")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "configuration",
			err:  &ConfigurationError{Path: "/schemas/v1", Reason: "no .sql files found"},
			want: "pgfixture: configuration (/schemas/v1): no .sql files found",
		},
		{
			name: "configuration with cause",
			err:  &ConfigurationError{Path: "/schemas/v1", Reason: "schema directory does not exist", Err: cause},
			want: "pgfixture: configuration (/schemas/v1): schema directory does not exist: cause",
		},
		{
			name: "provisioning",
			err:  &ProvisioningError{Op: "create", Database: "test", Err: cause},
			want: `pgfixture: create database "test": cause`,
		},
		{
			name: "provisioning without database",
			err:  &ProvisioningError{Op: "wait for server", Err: cause},
			want: "pgfixture: wait for server: cause",
		},
		{
			name: "schema load",
			err:  &SchemaLoadError{File: "/schemas/v1/02_seed.sql", Err: cause},
			want: "pgfixture: load /schemas/v1/02_seed.sql: cause",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}

	assert.ErrorIs(t, &ProvisioningError{Err: cause}, cause)
	assert.ErrorIs(t, &SchemaLoadError{Err: cause}, cause)
	assert.ErrorIs(t, &ConfigurationError{Err: cause}, cause)
}
