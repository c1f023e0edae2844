package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/ratelimit"

	"channelmirror/internal/domain"
)

// FloodWaitError is the throttle signal from the gateway: the caller must
// pause for Wait before the same request may be retried.
type FloodWaitError struct {
	Wait time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait: %s", e.Wait)
}

// Config holds gateway client configuration.
type Config struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	MinRequestDelay   time.Duration
	MaxRequestDelay   time.Duration
	FloodWaitMargin   time.Duration
	RequestsPerMinute int
}

// Client talks to the Telegram gateway API with pacing discipline: every
// request takes a rate-limiter slot and then sleeps a randomized delay to
// stay under the source's abuse thresholds. Flood-wait responses are the
// only retried failure class; the retried request carries the same cursor,
// so no data is replayed or skipped.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	limiter     ratelimit.Limiter
	minDelay    time.Duration
	maxDelay    time.Duration
	floodMargin time.Duration
	logger      *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 20
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     cfg.BaseURL,
		token:       cfg.Token,
		limiter:     ratelimit.New(rpm, ratelimit.Per(time.Minute)),
		minDelay:    cfg.MinRequestDelay,
		maxDelay:    cfg.MaxRequestDelay,
		floodMargin: cfg.FloodWaitMargin,
		logger:      logger.With("component", "telegram"),
	}
}

// Connect verifies the gateway session is reachable and authorized.
func (c *Client) Connect(ctx context.Context) error {
	var resp sessionResponse
	if err := c.getJSON(ctx, "/session", nil, &resp); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	if !resp.Authorized {
		return fmt.Errorf("%w: session not authorized", domain.ErrSourceUnavailable)
	}
	return nil
}

// ResolveEntity resolves a handle or a numeric id string to a channel
// entity. Numeric ids go through the id-typed route so they cannot collide
// with non-channel entities sharing the numeric space.
func (c *Client) ResolveEntity(ctx context.Context, identifier string) (*domain.Entity, error) {
	path := "/entities/" + url.PathEscape(identifier)
	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		path = "/entities/by-id/" + strconv.FormatInt(id, 10)
	}

	var resp entityResponse
	if err := c.getJSON(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Type != "channel" {
		c.logger.Warn("entity is not a channel", "identifier", identifier, "type", resp.Type)
		return nil, domain.ErrEntityNotFound
	}

	return &domain.Entity{
		ID:        resp.ID,
		Handle:    resp.Handle,
		Title:     resp.Title,
		Broadcast: resp.Broadcast,
	}, nil
}

// ChannelInfo fetches the full channel profile for enrichment.
func (c *Client) ChannelInfo(ctx context.Context, entity *domain.Entity) (*domain.ChannelInfo, error) {
	var resp fullChannelResponse
	path := fmt.Sprintf("/channels/%d/full", entity.ID)
	if err := c.getJSON(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	return &domain.ChannelInfo{
		TelegramID:       resp.ID,
		Username:         resp.Handle,
		Title:            resp.Title,
		Description:      resp.About,
		IsVerified:       resp.Verified,
		SubscribersCount: resp.ParticipantsCount,
	}, nil
}

// FetchRecent returns up to limit messages with external id greater than
// sinceID, for steady-state incremental sync.
func (c *Client) FetchRecent(ctx context.Context, entity *domain.Entity, limit int, sinceID int64) ([]domain.Message, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("min_id", strconv.FormatInt(sinceID, 10))

	var resp messagesResponse
	path := fmt.Sprintf("/channels/%d/messages", entity.ID)
	if err := c.getJSON(ctx, path, q, &resp); err != nil {
		return nil, err
	}

	messages := c.parseMessages(resp.Messages)
	c.logger.Info("fetched recent messages",
		"entity", entity.ID,
		"since_id", sinceID,
		"count", len(messages),
	)
	return messages, nil
}

// StreamSince walks the channel history forward from since, sending batches
// of up to batchSize messages. The producer does nothing but fetch and
// parse; persistence and progress belong to the consumer. Both returned
// channels are closed when the walk ends.
func (c *Client) StreamSince(ctx context.Context, entity *domain.Entity, since time.Time, batchSize int) (<-chan []domain.Message, <-chan error) {
	out := make(chan []domain.Message)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		path := fmt.Sprintf("/channels/%d/messages", entity.ID)
		var offsetID int64
		total := 0

		for {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(batchSize))
			q.Set("order", "asc")
			if offsetID == 0 {
				q.Set("offset_date", since.UTC().Format(time.RFC3339))
			} else {
				q.Set("offset_id", strconv.FormatInt(offsetID, 10))
			}

			var resp messagesResponse
			if err := c.getJSON(ctx, path, q, &resp); err != nil {
				errc <- err
				return
			}
			if len(resp.Messages) == 0 {
				break
			}

			offsetID = resp.Messages[len(resp.Messages)-1].ID
			batch := c.parseMessages(resp.Messages)
			total += len(batch)

			select {
			case out <- batch:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}

			if len(resp.Messages) < batchSize {
				break
			}
		}

		c.logger.Info("history walk finished",
			"entity", entity.ID,
			"since", since,
			"total", total,
		)
	}()

	return out, errc
}

// getJSON performs one paced request and decodes the response. A flood-wait
// response suspends for the mandated duration plus a margin and retries the
// identical request; all other failures propagate.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	for {
		if err := c.pace(ctx); err != nil {
			return err
		}

		retryAfter, err := c.doRequest(ctx, u, v)
		if err == nil {
			return nil
		}
		if retryAfter <= 0 {
			return err
		}

		wait := retryAfter + c.floodMargin
		c.logger.Warn("flood wait from source", "wait", wait, "url", path)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		c.logger.Info("resumed after flood wait", "url", path)
	}
}

// doRequest returns a positive retryAfter only for flood-wait responses.
func (c *Client) doRequest(ctx context.Context, url string, v any) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return 0, fmt.Errorf("decode response: %w", err)
		}
		return 0, nil
	case http.StatusTooManyRequests:
		var fw floodWaitResponse
		if err := json.NewDecoder(resp.Body).Decode(&fw); err != nil || fw.RetryAfter <= 0 {
			return 0, fmt.Errorf("throttled without retry_after")
		}
		wait := time.Duration(fw.RetryAfter) * time.Second
		return wait, &FloodWaitError{Wait: wait}
	case http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return 0, domain.ErrEntityNotFound
	default:
		io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}

// pace blocks for the rate-limiter slot plus a randomized delay.
func (c *Client) pace(ctx context.Context) error {
	c.limiter.Take()

	delay := c.minDelay
	if c.maxDelay > c.minDelay {
		delay += rand.N(c.maxDelay - c.minDelay)
	}
	if delay <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (c *Client) parseMessages(wire []wireMessage) []domain.Message {
	messages := make([]domain.Message, 0, len(wire))
	for _, m := range wire {
		contentType := m.Type
		if contentType == "" {
			contentType = domain.ContentText
		}

		msg := domain.Message{
			TelegramMessageID: m.ID,
			ContentType:       contentType,
			TextContent:       m.Text,
			MediaURL:          m.MediaURL,
			ViewsCount:        m.Views,
			ForwardsCount:     m.Forwards,
			RepliesCount:      m.Replies,
			ReactionsCount:    m.Reactions,
			HasLinks:          m.HasLinks,
		}

		if m.PostedAt != nil {
			postedAt, err := time.Parse(time.RFC3339, *m.PostedAt)
			if err != nil {
				c.logger.Warn("failed to parse posted_at",
					"external_id", m.ID,
					"posted_at", *m.PostedAt,
				)
			} else {
				msg.PostedAt = &postedAt
			}
		}

		messages = append(messages, msg)
	}
	return messages
}
