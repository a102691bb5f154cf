package plugin

// Number reads a numeric config value. JSON round-trips turn integers into
// float64, so both are accepted.
func (p Params) Number(key string) (float64, bool) {
	switch v := p.Config[key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
