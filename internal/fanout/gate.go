package fanout

// Authorize decides whether caller may send req. Checks run in a fixed
// order: profile, building, role. A nil caller or one without a building
// has no membership.
func Authorize(caller *CallerIdentity, req Request) error {
	if caller == nil || caller.BuildingID == "" {
		return ErrProfileNotFound
	}
	if caller.BuildingID != req.BuildingID {
		return ErrBuildingMismatch
	}
	if req.Category.committeeOnly() && caller.Role != RoleCommittee {
		return ErrInsufficientRole
	}
	return nil
}
