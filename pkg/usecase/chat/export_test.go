package chat

// HeldLocks reports how many sessions currently have a turn lock entry
func (uc *UseCase) HeldLocks() int {
	return uc.locks.size()
}
