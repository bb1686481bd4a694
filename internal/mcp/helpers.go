package mcpserver

import "encoding/json"

// viewArg returns the optional viewName argument, "" meaning the configured view.
func viewArg(args map[string]any) string {
	name, _ := args["viewName"].(string)
	return name
}

// intArg reads a numeric argument, falling back to def.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}
