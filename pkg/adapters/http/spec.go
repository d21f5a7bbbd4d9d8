package http

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var openapiSpec []byte

var loadSpec = sync.OnceValues(func() (*openapi3.T, error) {
	doc, err := openapi3.NewLoader().LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("error loading spec: %w", err)
	}
	return doc, nil
})

// Spec returns the parsed OpenAPI document served on /openapi.yaml.
func Spec() (*openapi3.T, error) {
	return loadSpec()
}
