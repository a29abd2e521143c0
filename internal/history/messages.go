package history

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/studydesk/classfeed/internal/model"
)

// GetPageOptions controls a historical page fetch.
type GetPageOptions struct {
	Cursor string // empty = newest page
	Limit  int    // 0 = server default
}

// GetPage fetches one page of a room's messages, newest first.
func (c *Client) GetPage(ctx context.Context, room model.RoomKey, opts GetPageOptions) (*model.Page, error) {
	query := url.Values{}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	path := fmt.Sprintf("/rooms/%s/%s/messages", room.Kind, url.PathEscape(room.ID))

	var page model.Page
	if err := c.get(ctx, path, query, &page); err != nil {
		return nil, fmt.Errorf("get page %s: %w", room, err)
	}

	return &page, nil
}

// GetAllMessages drains a room's full history by paginating to exhaustion.
// Intended for tools and tests, not the hot path.
func (c *Client) GetAllMessages(ctx context.Context, room model.RoomKey) ([]model.Message, error) {
	var all []model.Message
	opts := GetPageOptions{}

	for {
		page, err := c.GetPage(ctx, room, opts)
		if err != nil {
			return nil, err
		}

		all = append(all, page.Messages...)

		if page.NextCursor == "" {
			break
		}
		opts.Cursor = page.NextCursor
	}

	return all, nil
}
