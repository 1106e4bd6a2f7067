package strategies

import (
	"fmt"

	"github.com/striderhq/strider/pkg/tools"
)

// New creates the named strategy variant. Valid names: structured, react,
// channels.
func New(name string, specs []tools.ToolSpec) (Strategy, error) {
	switch name {
	case "structured", "":
		return NewStructuredStrategy(specs), nil
	case "react":
		return NewReactStrategy(), nil
	case "channels":
		return NewChannelStrategy(specs), nil
	default:
		return nil, fmt.Errorf("strategies: unknown strategy %q (valid: structured, react, channels)", name)
	}
}
