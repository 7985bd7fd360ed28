package config

import (
	"path/filepath"

	"github.com/docuchat/backend-go/internal/logger"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher 监听配置文件变化并触发重新加载
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	done    chan struct{}
}

// NewWatcher 创建配置文件监听器
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// 监听目录而非文件本身，编辑器的原子替换会使文件级监听失效
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{
		watcher: fw,
		path:    path,
		done:    make(chan struct{}),
	}, nil
}

// Start 启动监听循环，配置变化时调用onReload
func (w *Watcher) Start(onReload func(*Config)) {
	go func() {
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := LoadConfig(); err != nil {
					logger.Warn("配置重新加载失败", zap.Error(err))
					continue
				}
				logger.Info("配置已重新加载", zap.String("path", w.path))
				if onReload != nil {
					onReload(AppConfig)
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("配置监听错误", zap.Error(err))
			case <-w.done:
				return
			}
		}
	}()
}

// Close 停止监听
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
