package personal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"

	"github.com/edgard/nexa/internal/logger"
)

// warmDialogs is the number of recent dialogs loaded into the peer cache on start.
const warmDialogs = 100

// ListenerConfig identifies the user session.
type ListenerConfig struct {
	APIID       int
	APIHash     string
	Phone       string
	Password    string
	SessionPath string
	// CodePrompt asks for the login code on first run; nil reads a line from stdin.
	CodePrompt func(ctx context.Context) (string, error)
}

// Listener is an MTProto user session that hands every incoming message to
// forward and can send text to chats it has seen.
type Listener struct {
	cfg     ListenerConfig
	client  *telegram.Client
	sender  *message.Sender
	peers   *peerCache
	forward func(payload map[string]any) bool
	log     *slog.Logger
}

func NewListener(cfg ListenerConfig, forward func(payload map[string]any) bool, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.CodePrompt == nil {
		cfg.CodePrompt = stdinCode
	}

	l := &Listener{
		cfg:     cfg,
		peers:   newPeerCache(),
		forward: forward,
		log:     log.With("component", "listener"),
	}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewMessage(l.onNewMessage)

	l.client = telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionPath},
		UpdateHandler:  dispatcher,
	})
	l.sender = message.NewSender(l.client.API())
	return l
}

// Run connects, authenticates when the stored session is missing, and
// blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	return l.client.Run(ctx, func(ctx context.Context) error {
		flow := auth.NewFlow(l.authenticator(), auth.SendCodeOptions{})
		if err := l.client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("failed to authenticate user session: %w", err)
		}

		self, err := l.client.Self(ctx)
		if err != nil {
			return fmt.Errorf("failed to get session user: %w", err)
		}
		l.log.InfoContext(ctx, "User session started", "username", self.Username, "id", self.ID)

		l.warmPeers(ctx)

		<-ctx.Done()
		l.log.Info("User session stopping")
		return nil
	})
}

// warmPeers seeds the peer cache from the most recent dialogs so chats that
// wrote before a restart can be answered. Failure leaves the cache to fill
// from updates.
func (l *Listener) warmPeers(ctx context.Context) {
	dialogs, err := l.client.API().MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      warmDialogs,
	})
	if err != nil {
		l.log.WarnContext(ctx, "Failed to load dialogs, peer cache starts empty", "error", err)
		return
	}
	n := l.peers.rememberDialogs(dialogs)
	l.log.InfoContext(ctx, "Peer cache warmed from dialogs", "peers", n)
}

func (l *Listener) authenticator() auth.UserAuthenticator {
	code := auth.CodeAuthenticatorFunc(func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
		return l.cfg.CodePrompt(ctx)
	})
	if l.cfg.Password != "" {
		return auth.Constant(l.cfg.Phone, l.cfg.Password, code)
	}
	return auth.CodeOnly(l.cfg.Phone, code)
}

func (l *Listener) onNewMessage(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
	msg, ok := u.Message.(*tg.Message)
	if !ok || msg.Out {
		return nil
	}
	l.peers.remember(e)

	ev := eventFromMessage(msg, e)
	from := ev.Username
	if from == "" {
		from = strconv.FormatInt(ev.SenderID, 10)
	}
	l.log.InfoContext(ctx, "Received personal message", "from", from, "text", logger.Truncate(ev.Text, 120))

	l.forward(BuildPayload(ev))
	return nil
}

// SendText sends text to chatID. Numeric ids must belong to a chat seen by
// this session; anything else is resolved as a username.
func (l *Listener) SendText(ctx context.Context, chatID, text string) error {
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		peer, ok := l.peers.lookup(id)
		if !ok {
			return fmt.Errorf("chat %s is not known to this session", chatID)
		}
		if _, err := l.sender.To(peer).Text(ctx, text); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
		return nil
	}

	if _, err := l.sender.Resolve(chatID).Text(ctx, text); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", chatID, err)
	}
	return nil
}

func eventFromMessage(msg *tg.Message, e tg.Entities) Event {
	ev := Event{
		MessageID: msg.ID,
		Date:      msg.Date,
		Text:      msg.Message,
		Raw: map[string]any{
			"_":         msg.TypeName(),
			"id":        msg.ID,
			"date":      msg.Date,
			"message":   msg.Message,
			"mentioned": msg.Mentioned,
			"silent":    msg.Silent,
		},
	}

	var senderID int64
	if from, ok := msg.GetFromID(); ok {
		if user, ok := from.(*tg.PeerUser); ok {
			senderID = user.UserID
		}
	}

	switch peer := msg.PeerID.(type) {
	case *tg.PeerUser:
		ev.Private = true
		ev.ChatID = peer.UserID
		if senderID == 0 {
			senderID = peer.UserID
		}
	case *tg.PeerChat:
		ev.ChatID = peer.ChatID
	case *tg.PeerChannel:
		ev.ChatID = peer.ChannelID
	}
	if msg.PeerID != nil {
		ev.Raw["peer"] = msg.PeerID.TypeName()
	}

	ev.SenderID = senderID
	if user, ok := e.Users[senderID]; ok {
		ev.IsBot = user.Bot
		ev.FirstName = user.FirstName
		ev.Username = user.Username
	}
	return ev
}

// peerCache keeps input peers for every entity seen in updates, keyed by id.
type peerCache struct {
	mu    sync.RWMutex
	peers map[int64]tg.InputPeerClass
}

func newPeerCache() *peerCache {
	return &peerCache{peers: make(map[int64]tg.InputPeerClass)}
}

func (c *peerCache) remember(e tg.Entities) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, user := range e.Users {
		c.peers[id] = &tg.InputPeerUser{UserID: id, AccessHash: user.AccessHash}
	}
	for id := range e.Chats {
		c.peers[id] = &tg.InputPeerChat{ChatID: id}
	}
	for id, channel := range e.Channels {
		c.peers[id] = &tg.InputPeerChannel{ChannelID: id, AccessHash: channel.AccessHash}
	}
}

// rememberDialogs caches the users and chats of a dialogs response and
// returns how many peers it added or refreshed.
func (c *peerCache) rememberDialogs(d tg.MessagesDialogsClass) int {
	var users []tg.UserClass
	var chats []tg.ChatClass
	switch d := d.(type) {
	case *tg.MessagesDialogs:
		users, chats = d.Users, d.Chats
	case *tg.MessagesDialogsSlice:
		users, chats = d.Users, d.Chats
	default:
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			c.peers[user.ID] = &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}
			n++
		}
	}
	for _, ch := range chats {
		switch chat := ch.(type) {
		case *tg.Chat:
			c.peers[chat.ID] = &tg.InputPeerChat{ChatID: chat.ID}
			n++
		case *tg.Channel:
			c.peers[chat.ID] = &tg.InputPeerChannel{ChannelID: chat.ID, AccessHash: chat.AccessHash}
			n++
		}
	}
	return n
}

func (c *peerCache) lookup(id int64) (tg.InputPeerClass, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	peer, ok := c.peers[id]
	return peer, ok
}

func stdinCode(_ context.Context) (string, error) {
	fmt.Fprint(os.Stderr, "Enter the login code sent by Telegram: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read login code: %w", err)
	}
	return strings.TrimSpace(line), nil
}
