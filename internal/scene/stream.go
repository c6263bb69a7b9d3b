package scene

import (
	"context"
	"sync"
)

// TextStream - упорядоченная последовательность фрагментов текста с одним читателем.
// Канал фрагментов буферизован на один элемент: медленный читатель тормозит генерацию.
type TextStream struct {
	chunks chan string
	cancel context.CancelFunc
	once   sync.Once

	mu  sync.Mutex
	err error
}

// Produce запускает producer в отдельной горутине и возвращает поток его фрагментов.
// emit блокируется, пока читатель не заберёт предыдущий фрагмент, и возвращает
// ошибку контекста после Close. Ошибка producer доступна через Err().
func Produce(ctx context.Context, producer func(ctx context.Context, emit func(string) error) error) *TextStream {
	streamCtx, cancel := context.WithCancel(ctx)
	s := &TextStream{chunks: make(chan string, 1), cancel: cancel}
	go func() {
		err := producer(streamCtx, func(text string) error { return s.send(streamCtx, text) })
		s.finish(err)
	}()
	return s
}

// Chunks закрывается после последнего фрагмента или ошибки.
func (s *TextStream) Chunks() <-chan string {
	return s.chunks
}

// Err возвращает итоговую ошибку; имеет смысл после закрытия Chunks.
func (s *TextStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close отменяет генерацию со стороны читателя. Повторный вызов безопасен.
func (s *TextStream) Close() {
	s.once.Do(s.cancel)
}

// send блокируется, пока читатель не заберёт предыдущий фрагмент или контекст не отменён.
func (s *TextStream) send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.chunks <- text:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *TextStream) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.chunks)
	s.Close()
}
