// Package api carries the OpenAPI description of the HTTP interface.
package api

import _ "embed"

// OpenAPI is the api/openapi.yaml document.
//
//go:embed openapi.yaml
var OpenAPI []byte
