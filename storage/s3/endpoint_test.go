package s3

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
)

func TestRequiresVirtualHost(t *testing.T) {
	tests := []struct {
		endpoint string
		want     bool
	}{
		{endpoint: "https://cwobject.com", want: true},
		{endpoint: "cwobject.com", want: true},
		{endpoint: "https://cwobject.com/", want: true},
		{endpoint: "  https://cwobject.com  ", want: true},
		{endpoint: "http://cwobject.com", want: false},
		{endpoint: "http://cwlota.com", want: true},
		{endpoint: "http://cwlota.com/", want: true},
		{endpoint: "https://cwlota.com", want: false},
		{endpoint: "https://accel-object.us-east-04a.coreweave.com", want: true},
		{endpoint: "https://object.ord1.coreweave.com", want: true},
		{endpoint: "object.lga1.coreweave.com", want: true},
		{endpoint: "https://object.ord1.coreweave.com.evil.com", want: false},
		{endpoint: "https://sub.object.ord1.coreweave.com", want: false},
		{endpoint: "https://s3.amazonaws.com", want: false},
		{endpoint: "http://localhost:4566", want: false},
		{endpoint: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.want, RequiresVirtualHost(tt.endpoint))
		})
	}
}

func TestClientOptions(t *testing.T) {
	apply := func(endpoint string, pathStyle bool, base s3.Options) s3.Options {
		for _, fn := range clientOptions(endpoint, pathStyle) {
			fn(&base)
		}
		return base
	}

	assert.Empty(t, clientOptions("", true))

	tests := []struct {
		name      string
		endpoint  string
		pathStyle bool
		initial   bool
		wantPath  bool
		wantBase  string
	}{
		{name: "allow-listed forces virtual", endpoint: "cwobject.com", initial: true, wantBase: "https://cwobject.com"},
		{name: "allow-listed ignores path style", endpoint: "cwobject.com", pathStyle: true, wantBase: "https://cwobject.com"},
		{name: "custom keeps default", endpoint: "https://minio.example.com", wantBase: "https://minio.example.com"},
		{name: "custom keeps configured", endpoint: "https://minio.example.com", initial: true, wantPath: true, wantBase: "https://minio.example.com"},
		{name: "custom path style", endpoint: "http://localhost:4566", pathStyle: true, wantPath: true, wantBase: "http://localhost:4566"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := apply(tt.endpoint, tt.pathStyle, s3.Options{UsePathStyle: tt.initial})
			assert.Equal(t, tt.wantPath, o.UsePathStyle)
			assert.Equal(t, tt.wantBase, aws.ToString(o.BaseEndpoint))
		})
	}
}
