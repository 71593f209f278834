package openapi

import (
	"net/url"

	"gopkg.in/yaml.v3"
)

// Upload renders the document for the file upload endpoint.
func Upload(serverURL string) ([]byte, error) {
	post := mapping(
		"summary", str("Upload a file to DecisionCentral"),
		"operationId", str("upload"),
		"requestBody", mapping(
			"description", str("multipart form with the decision service file"),
			"content", mapping(
				"multipart/form-data", mapping("schema", mapping("$ref", str("#/components/schemas/FileUpload"))),
			),
			"required", boolean(true),
		),
		"responses", mapping(
			"201", mapping(
				"description", str("Item created"),
				"content", htmlContent(),
			),
			"400", mapping("description", str("Invalid input, object invalid")),
		),
	)

	doc := header("Decision Service file upload API")
	add(doc,
		"paths", mapping("/upload", mapping("post", post)),
		"components", mapping("schemas", mapping(
			"FileUpload", mapping(
				"type", str("object"),
				"properties", mapping(
					"file", mapping("type", str("string"), "format", str("binary")),
				),
			),
		)),
	)
	return render(doc, serverURL)
}

// Delete renders the document for deleting the named service.
func Delete(name, serverURL string) ([]byte, error) {
	get := mapping(
		"summary", str("Delete a DecisionCentral Decision Service"),
		"operationId", str("delete"),
		"responses", mapping(
			"200", mapping(
				"description", str("Item deleted"),
				"content", htmlContent(),
			),
			"400", mapping("description", str("Invalid request")),
		),
	)

	doc := header("Delete Decision Service API")
	add(doc, "paths", mapping("/delete/"+url.PathEscape(name), mapping("get", get)))
	return render(doc, serverURL)
}

func htmlContent() *yaml.Node {
	return mapping("text/html", mapping("schema", mapping("type", str("string"))))
}
