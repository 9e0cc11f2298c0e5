package scheduler

// Scheduler owns two independent pools: containers get a quarter of the
// configured concurrency, objects get the rest, and neither pool ever
// runs the other's work.
type Scheduler struct {
	Containers *Pool
	Objects    *Pool
}

// New builds a Scheduler for concurrency C (total worker budget).
func New(c int) *Scheduler {
	if c < 1 {
		c = 1
	}
	containerCap := c / 4
	if containerCap < 1 {
		containerCap = 1
	}
	objectCap := c - c/4
	if objectCap < 1 {
		objectCap = 1
	}
	return &Scheduler{
		Containers: NewPool(containerCap),
		Objects:    NewPool(objectCap),
	}
}

// QuiesceAll waits for container tasks, then for every object task they
// transitively spawned. The ordering matters: a container task's object
// spawns are synchronous calls to Objects.Spawn, so by the time
// Containers.Quiesce returns, every object task it will ever spawn has
// already been registered with Objects' wait group.
func (s *Scheduler) QuiesceAll() {
	s.Containers.Quiesce()
	s.Objects.Quiesce()
}

// Stop tears down both pools' worker goroutines.
func (s *Scheduler) Stop() {
	s.Containers.Stop()
	s.Objects.Stop()
}
