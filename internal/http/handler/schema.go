package handler

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/invopop/jsonschema"

	"basegraph.app/courier/internal/model"
)

// SchemaHandler serves the JSON schema of the context input handed to the workflow, so
// workflow authors can validate what they receive.
type SchemaHandler struct {
	once   sync.Once
	schema *jsonschema.Schema
}

func NewSchemaHandler() *SchemaHandler {
	return &SchemaHandler{}
}

func (h *SchemaHandler) TaskContext(c *gin.Context) {
	h.once.Do(func() {
		h.schema = TaskContextSchema()
	})
	c.JSON(http.StatusOK, h.schema)
}

// TaskContextSchema reflects the schema of model.TaskContext.
func TaskContextSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&model.TaskContext{})
	schema.Title = "TaskContext"
	schema.Description = "Context input of the dispatched workflow"
	return schema
}
