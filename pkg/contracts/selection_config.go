package contracts

// WeightedToken is an optional selection token with its score contribution.
type WeightedToken struct {
	Token  string  `json:"token"`
	Weight float64 `json:"weight"`
}

// SelectionConfig drives template matching. A version with an entirely empty
// config can never be selected and fails its activation gate.
type SelectionConfig struct {
	RequiredTokensAll []string        `json:"requiredTokensAll,omitempty"`
	RequiredTokensAny []string        `json:"requiredTokensAny,omitempty"`
	OptionalTokens    []WeightedToken `json:"optionalTokens,omitempty"`
	FormCodeRegex     string          `json:"formCodeRegex,omitempty"`
}

// IsEmpty reports whether no selection signal is configured at all.
func (c SelectionConfig) IsEmpty() bool {
	return len(c.RequiredTokensAll) == 0 &&
		len(c.RequiredTokensAny) == 0 &&
		c.FormCodeRegex == ""
}

// TokenCount counts every token the config references, across all lists.
func (c SelectionConfig) TokenCount() int {
	return len(c.RequiredTokensAll) + len(c.RequiredTokensAny) + len(c.OptionalTokens)
}
