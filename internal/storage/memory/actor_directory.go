package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// ActorDirectory — in-memory справочник участников. В проде роль
// приходит из сервиса авторизации; здесь её регистрируют явно.
type ActorDirectory struct {
	mu     sync.RWMutex
	actors map[string]domain.Actor
}

// NewActorDirectory создаёт пустой справочник.
func NewActorDirectory() *ActorDirectory {
	return &ActorDirectory{
		actors: make(map[string]domain.Actor),
	}
}

// Register добавляет или обновляет участника.
func (d *ActorDirectory) Register(actor domain.Actor) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.actors[actor.ID] = actor
}

// Resolve возвращает участника или ErrActorNotFound.
// Пустой идентификатор трактуется как системный вызов.
func (d *ActorDirectory) Resolve(actorID string) (domain.Actor, error) {
	if actorID == "" {
		return domain.Actor{Role: domain.RoleSystem}, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	actor, ok := d.actors[actorID]
	if !ok {
		return domain.Actor{}, domain.ErrActorNotFound
	}
	return actor, nil
}

var _ domain.ActorDirectory = (*ActorDirectory)(nil)
