package main

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/Sternrassler/intercom-export/pkg/conversation"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of an output file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := outputSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}

// outputSchema describes one output file: an array of normalized conversations.
func outputSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: false,
		Mapper:                     mapParticipants,
	}

	schema := reflector.Reflect([]conversation.Normalized{})
	schema.Title = "Intercom conversation export page"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

// mapParticipants renders the positional participant pair with nullable slots.
func mapParticipants(t reflect.Type) *jsonschema.Schema {
	if t != reflect.TypeOf(conversation.Participants{}) {
		return nil
	}
	return &jsonschema.Schema{
		Type:        "array",
		Description: "[source author id, admin assignee id]; absent ids are null",
		Items: &jsonschema.Schema{
			OneOf: []*jsonschema.Schema{
				{Type: "string"},
				{Type: "null"},
			},
		},
	}
}
