package feed

import (
	"context"
	"errors"

	"github.com/studydesk/classfeed/internal/history"
	"github.com/studydesk/classfeed/internal/model"
)

// Errors
var (
	ErrDisposed = errors.New("feed pager disposed")
)

// PageFetcher is the historical-read collaborator.
type PageFetcher interface {
	GetPage(ctx context.Context, room model.RoomKey, opts history.GetPageOptions) (*model.Page, error)
}

// ConnStatus is the coarse connectivity signal from the connection manager.
type ConnStatus interface {
	Connected() bool
}

// RoomJoiner is the slice of the connection manager the feed service uses to
// replay room interest.
type RoomJoiner interface {
	Join(key model.RoomKey)
	Leave(key model.RoomKey)
}
