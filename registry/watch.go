package registry

import (
	"github.com/fsnotify/fsnotify"

	"github.com/cadencehq/cadence/errors"
	"github.com/cadencehq/cadence/logger"
)

type watcher struct {
	fs   *fsnotify.Watcher
	done chan struct{}
}

// Watch reloads the registry whenever the external file changes. Editors
// commonly replace the file rather than writing in place, so create and
// rename events trigger a reload too. Call Close to stop watching.
func (r *Registry) Watch(path string) error {
	if r.watcher != nil {
		return errors.New("registry is already watching")
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating file watcher")
	}
	if err := fs.Add(path); err != nil {
		fs.Close()
		return errors.Wrapf(err, "watching %s", path)
	}

	w := &watcher{fs: fs, done: make(chan struct{})}
	r.watcher = w

	go func() {
		defer close(w.done)
		for {
			select {
			case event, ok := <-fs.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := r.Reload(path); err != nil {
					logger.Warnw("type registry reload failed",
						logger.FieldPath, path,
						logger.FieldError, err,
					)
					continue
				}
				logger.Infow("type registry reloaded", logger.FieldPath, path)
			case err, ok := <-fs.Errors:
				if !ok {
					return
				}
				logger.Warnw("type registry watch error", logger.FieldError, err)
			}
		}
	}()

	return nil
}

// Close stops the file watcher if one is running.
func (r *Registry) Close() error {
	if r.watcher == nil {
		return nil
	}
	err := r.watcher.fs.Close()
	<-r.watcher.done
	r.watcher = nil
	return err
}
