// Package watch reports changes to a fixed set of files.
package watch

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Watcher delivers the path of a watched file each time it is written or
// (re)created. The parent directories are watched rather than the files,
// so editors that save by renaming over the original keep being seen.
type Watcher struct {
	w     *fsnotify.Watcher
	files map[string]string
	evC   chan string
	erC   chan error
	done  chan struct{}
}

func New(paths ...string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "could not start file watcher")
	}
	fw := &Watcher{
		w:     w,
		files: make(map[string]string, len(paths)),
		evC:   make(chan string, 16),
		erC:   make(chan error, 1),
		done:  make(chan struct{}),
	}

	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			w.Close()
			return nil, errors.Wrapf(err, "could not watch '%s'", p)
		}
		fw.files[abs] = p
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, errors.Wrapf(err, "could not watch '%s'", dir)
		}
	}

	go fw.loop()
	return fw, nil
}

func (fw *Watcher) loop() {
	defer close(fw.done)
	defer close(fw.evC)
	for {
		select {
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if name, watched := fw.files[filepath.Clean(ev.Name)]; watched {
				fw.evC <- name
			}
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			select {
			case fw.erC <- err:
			default:
			}
		}
	}
}

// Events yields the path, as given to New, of each changed file. It is
// closed after Close.
func (fw *Watcher) Events() <-chan string { return fw.evC }
func (fw *Watcher) Errors() <-chan error  { return fw.erC }

// Close stops the watcher. Pending events may be dropped.
func (fw *Watcher) Close() error {
	err := fw.w.Close()
	for range fw.evC {
	}
	<-fw.done
	return err
}
