/*
Copyright 2023 - 2026 Dima Krasner

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cfg

import (
	"encoding/csv"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DomainList is a hot-reloaded allow- or block-list of instance domains,
// loaded from a one-column CSV file with a header row.
type DomainList struct {
	lock    sync.Mutex
	wg      sync.WaitGroup
	w       *fsnotify.Watcher
	domains map[string]struct{}
}

const domainListReloadDelay = time.Second * 5

func loadDomainList(path string) (map[string]struct{}, error) {
	domains := make(map[string]struct{})

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c := csv.NewReader(f)
	first := true
	for {
		r, err := c.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if first {
			first = false
			continue
		}

		domains[r[0]] = struct{}{}
	}

	return domains, nil
}

// NewDomainList loads path and watches its containing directory for
// changes, reloading after a short debounce delay.
func NewDomainList(log *slog.Logger, path string) (*DomainList, error) {
	domains, err := loadDomainList(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	absPath := filepath.Join(dir, filepath.Base(path))

	d := &DomainList{w: w, domains: domains}

	timer := time.NewTimer(math.MaxInt64)
	timer.Stop()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					timer.Stop()
					return
				}

				if (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) && event.Name == absPath {
					timer.Reset(domainListReloadDelay)
				}

			case <-timer.C:
				newDomains, err := loadDomainList(path)
				if err != nil {
					log.Warn("Failed to reload domain list", "path", path, "error", err)
					continue
				}

				if len(d.domains) > 0 && len(newDomains) == 0 {
					log.Warn("New domain list is empty, keeping the old one", "path", path)
					continue
				}

				d.lock.Lock()
				d.domains = newDomains
				d.lock.Unlock()
				log.Info("Reloaded domain list", "path", path, "length", len(newDomains))
			}
		}
	}()

	return d, nil
}

// Contains reports whether domain is a member of the list.
func (d *DomainList) Contains(domain string) bool {
	d.lock.Lock()
	_, contains := d.domains[domain]
	d.lock.Unlock()
	return contains
}

// Close stops watching and frees resources.
func (d *DomainList) Close() {
	d.w.Close()
	d.wg.Wait()
}
