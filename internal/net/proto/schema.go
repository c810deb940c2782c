package proto

import (
	"reflect"

	"github.com/invopop/jsonschema"
)

// Schema describes the countdown broadcast and every directed call payload.
// Served by the relay for client authors.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}

	payloads := []struct {
		title string
		value any
	}{
		{"StartCountdown", StartCountdown{}},
		{"StatusDelta", StatusDelta{}},
		{"TimedAffliction", TimedAffliction{}},
		{"DrunkUI", DrunkUI{}},
		{"IntroPreview", IntroPreview{}},
		{"InventorySync", InventorySync{}},
		{"EquipSlot", EquipSlot{}},
		{"PassOut", PassOut{}},
		{"ThreatTarget", ThreatTarget{}},
		{"Explode", Explode{}},
		{"WorldItem", WorldItem{}},
	}

	root := &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Chaos protocol",
		Description: "Payloads carried by countdown and call frames.",
	}
	for _, p := range payloads {
		s := reflector.ReflectFromType(reflect.TypeOf(p.value))
		if s == nil {
			continue
		}
		s.Version = ""
		s.Title = p.title
		root.OneOf = append(root.OneOf, s)
	}
	return root
}
