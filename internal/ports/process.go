package ports

// ProcessInspector checks whether supervisor processes are still alive
type ProcessInspector interface {
	Alive(pid int) bool
}
