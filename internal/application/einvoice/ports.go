package einvoice

import (
	"sync"
)

// deviceLocks serializa el pipeline completo (construir → firmar → enviar →
// persistir) por dispositivo: el PIH y el contador ICV forman una cadena y
// dos envíos concurrentes del mismo dispositivo la romperían.
type deviceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newDeviceLocks() *deviceLocks {
	return &deviceLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock bloquea el mutex del dispositivo y devuelve su unlock.
func (d *deviceLocks) Lock(deviceID string) func() {
	d.mu.Lock()
	lock, ok := d.locks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[deviceID] = lock
	}
	d.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
