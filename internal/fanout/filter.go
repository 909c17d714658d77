package fanout

// FilterTokens reduces rows to the unique device tokens that should receive
// req, keeping first-seen order.
func FilterTokens(rows []RecipientRow, req Request) []string {
	seen := make(map[string]struct{}, len(rows))
	tokens := make([]string, 0, len(rows))

	for _, r := range rows {
		if r.DeviceToken == "" {
			continue
		}
		if req.ExcludeUserID != "" && r.UserID == req.ExcludeUserID {
			continue
		}
		if !r.Preferences.Enabled(req.Category) {
			continue
		}
		if _, dup := seen[r.DeviceToken]; dup {
			continue
		}
		seen[r.DeviceToken] = struct{}{}
		tokens = append(tokens, r.DeviceToken)
	}
	return tokens
}
