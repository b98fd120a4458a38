package records

import "github.com/kirill555101/paperclip/pkg/openapi"

type spec struct {
	List     *openapi.Operation
	Create   *openapi.Operation
	Find     *openapi.Operation
	Destroy  *openapi.Operation
	Attach   *openapi.Operation
	Detach   *openapi.Operation
	Download *openapi.Operation
}

var (
	classParam      = openapi.PathParam("class", "", "Record class, as configured")
	idParam         = openapi.PathParam("id", "uuid", "Record ID")
	attachmentParam = openapi.PathParam("attachment", "", "Attachment name")
)

// Spec provides OpenAPI operations for the record endpoints.
var Spec = spec{
	List: &openapi.Operation{
		Summary:     "List records",
		Description: "List records of a class, oldest first, with the URL of every style",
		Parameters: []*openapi.Parameter{
			classParam,
			openapi.QueryParam("page", "integer", "Page number", false),
			openapi.QueryParam("page_size", "integer", "Items per page", false),
		},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Record page", "RecordPage"),
			404: openapi.ResponseRef("NotFound"),
		},
	},
	Create: &openapi.Operation{
		Summary:    "Create record",
		Parameters: []*openapi.Parameter{classParam},
		Responses: map[int]*openapi.Response{
			201: openapi.ResponseJSON("Record created", "Record"),
			404: openapi.ResponseRef("NotFound"),
		},
	},
	Find: &openapi.Operation{
		Summary:    "Find record",
		Parameters: []*openapi.Parameter{classParam, idParam},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Record", "Record"),
			400: openapi.ResponseRef("BadRequest"),
			404: openapi.ResponseRef("NotFound"),
		},
	},
	Destroy: &openapi.Operation{
		Summary:     "Destroy record",
		Description: "Delete the record, then every stored file of its attachments",
		Parameters:  []*openapi.Parameter{classParam, idParam},
		Responses: map[int]*openapi.Response{
			204: {Description: "Record destroyed"},
			404: openapi.ResponseRef("NotFound"),
		},
	},
	Attach: &openapi.Operation{
		Summary:     "Attach file",
		Description: "Replace the attachment with the uploaded file, derive every style and store the results",
		Parameters:  []*openapi.Parameter{classParam, idParam, attachmentParam},
		RequestBody: openapi.RequestBodyUpload("file", "File to attach"),
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Record with the new attachment", "Record"),
			400: openapi.ResponseRef("BadRequest"),
			404: openapi.ResponseRef("NotFound"),
			413: openapi.ResponseRef("PayloadTooLarge"),
			422: openapi.ResponseRef("UnprocessableEntity"),
			502: openapi.ResponseRef("BadGateway"),
		},
	},
	Detach: &openapi.Operation{
		Summary:     "Detach file",
		Description: "Clear the attachment and delete every stored style",
		Parameters:  []*openapi.Parameter{classParam, idParam, attachmentParam},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseJSON("Record without the attachment", "Record"),
			404: openapi.ResponseRef("NotFound"),
			502: openapi.ResponseRef("BadGateway"),
		},
	},
	Download: &openapi.Operation{
		Summary:     "Download style",
		Description: "Stream one stored style of the attachment",
		Parameters: []*openapi.Parameter{
			classParam, idParam, attachmentParam,
			openapi.PathParam("style", "", "Style name"),
		},
		Responses: map[int]*openapi.Response{
			200: openapi.ResponseBinary("Stored file"),
			404: openapi.ResponseRef("NotFound"),
			502: openapi.ResponseRef("BadGateway"),
		},
	},
}

// Schemas returns the component schemas referenced by Spec.
func (spec) Schemas() map[string]*openapi.Schema {
	nullable := func(typ, format string) *openapi.Schema {
		return &openapi.Schema{Type: typ, Format: format, Nullable: true}
	}

	return map[string]*openapi.Schema{
		"Attachment": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"file_name":    nullable("string", ""),
				"content_type": nullable("string", ""),
				"file_size":    nullable("integer", "int64"),
				"updated_at":   nullable("string", "date-time"),
				"urls": {
					Type:                 "object",
					Description:          "URL of every style, keyed by style name",
					AdditionalProperties: &openapi.Schema{Type: "string"},
				},
			},
		},
		"Record": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"id":         {Type: "string", Format: "uuid"},
				"class":      {Type: "string"},
				"created_at": {Type: "string", Format: "date-time"},
				"updated_at": {Type: "string", Format: "date-time"},
				"attachments": {
					Type:                 "object",
					AdditionalProperties: openapi.SchemaRef("Attachment"),
				},
			},
			Required: []string{"id", "class", "attachments"},
		},
		"RecordPage": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"data":        {Type: "array", Items: openapi.SchemaRef("Record")},
				"total":       {Type: "integer"},
				"page":        {Type: "integer"},
				"page_size":   {Type: "integer"},
				"total_pages": {Type: "integer"},
			},
		},
	}
}
