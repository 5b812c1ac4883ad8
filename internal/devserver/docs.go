package devserver

import (
	_ "embed"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

//go:embed openapi.json
var openAPIDoc string

// apiDoc serves the embedded OpenAPI document to the swagger UI.
type apiDoc struct{}

func (apiDoc) ReadDoc() string { return openAPIDoc }

func init() {
	swag.Register(swag.Name, apiDoc{})
}

// docsHandler serves the swagger UI under /swagger/ with the document at
// /swagger/doc.json.
func docsHandler() http.Handler {
	return httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DocExpansion("none"),
	)
}
