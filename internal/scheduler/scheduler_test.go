package scheduler

import (
	"sync/atomic"
	"testing"
)

func TestSchedulerSplitsCapacity(t *testing.T) {
	s := New(20)
	defer s.Stop()
	if cap(s.Containers.tasks) == 0 || cap(s.Objects.tasks) == 0 {
		t.Fatalf("pools not initialized")
	}
	// C=20: containers get 20/4 = 5 workers, objects 20-5 = 15; each
	// pool's queue holds 4 tasks per worker.
	if got, want := cap(s.Containers.tasks), 5*4; got != want {
		t.Errorf("container queue cap = %d, want %d", got, want)
	}
	if got, want := cap(s.Objects.tasks), 15*4; got != want {
		t.Errorf("object queue cap = %d, want %d", got, want)
	}
}

func TestSchedulerMinimumCapacityPerPool(t *testing.T) {
	s := New(1)
	defer s.Stop()
	var ran int32
	s.Containers.Spawn(func() { atomic.AddInt32(&ran, 1) })
	s.Objects.Spawn(func() { atomic.AddInt32(&ran, 1) })
	s.QuiesceAll()
	if ran != 2 {
		t.Errorf("ran = %d, want 2", ran)
	}
}

func TestQuiesceAllWaitsForObjectsSpawnedByContainers(t *testing.T) {
	s := New(8)
	defer s.Stop()

	var objectsRun int32
	const containers = 5
	const objectsPerContainer = 20
	for i := 0; i < containers; i++ {
		s.Containers.Spawn(func() {
			for j := 0; j < objectsPerContainer; j++ {
				s.Objects.Spawn(func() { atomic.AddInt32(&objectsRun, 1) })
			}
		})
	}
	s.QuiesceAll()
	if want := int32(containers * objectsPerContainer); objectsRun != want {
		t.Errorf("objectsRun = %d, want %d", objectsRun, want)
	}
}
