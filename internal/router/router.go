// Package router turns inbound WhatsApp text into engine commands. It
// owns the conversation surface: offer replies, numeric menus, legacy
// keyword commands and the free-text prompts of the admin menu.
//
// Dispatch precedence, strictly in order: a live offer reply beats
// everything, then an awaited free-text prompt, then the menu the sender
// is inside, then legacy keywords, and finally the root menu fallback.
package router

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rolesclub/rolesbot/internal/bus"
	"github.com/rolesclub/rolesbot/internal/catalog"
	"github.com/rolesclub/rolesbot/internal/round"
	"github.com/rolesclub/rolesbot/internal/store"
	"github.com/rolesclub/rolesbot/internal/tenant"
)

type errKind int

const (
	errOther errKind = iota
	errUnauthorized
	errRoundInProgress
	errNoPendingOffer
	errMemberNotFound
	errMemberBusy
	errDuplicateMember
	errInvalidMember
	errCorrupt
)

func classify(err error) errKind {
	switch {
	case errors.Is(err, round.ErrUnauthorized):
		return errUnauthorized
	case errors.Is(err, round.ErrRoundInProgress):
		return errRoundInProgress
	case errors.Is(err, round.ErrNoPendingOffer):
		return errNoPendingOffer
	case errors.Is(err, round.ErrMemberBusy):
		return errMemberBusy
	case errors.Is(err, round.ErrInvalidID):
		return errInvalidMember
	case errors.Is(err, catalog.ErrDuplicateID):
		return errDuplicateMember
	case errors.Is(err, catalog.ErrNotFound):
		return errMemberNotFound
	case errors.Is(err, store.ErrCorruptState):
		return errCorrupt
	default:
		return errOther
	}
}

// Dispatcher routes inbound messages for every tenant.
type Dispatcher struct {
	registry *tenant.Registry
	engine   *round.Engine
	sessions *SessionManager
	sender   bus.Sender
	tracer   trace.Tracer
	log      *slog.Logger
}

// NewDispatcher wires the router to its collaborators.
func NewDispatcher(reg *tenant.Registry, eng *round.Engine, sm *SessionManager, sender bus.Sender) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		engine:   eng,
		sessions: sm,
		sender:   sender,
		tracer:   otel.Tracer("rolesbot/router"),
		log:      slog.Default(),
	}
}

// Handle implements bus.Handler.
func (d *Dispatcher) Handle(ctx context.Context, msg bus.InboundMessage) {
	ctx, span := d.tracer.Start(ctx, "router.dispatch",
		trace.WithAttributes(attribute.String("message.id", msg.MessageID)))
	defer span.End()

	raw := strings.TrimSpace(msg.Text)
	text := normalize(raw)
	if text == "" {
		return
	}
	sender := msg.SenderID
	release := d.sessions.Acquire(sender)
	defer release()
	sess := d.sessions.Get(sender)
	d.log.Debug("router.inbound", "sender", sender, "mode", sess.Mode, "awaiting", sess.Awaiting)

	if d.tryOfferReply(ctx, sender, text) {
		return
	}
	if sess.Awaiting != AwaitNone {
		d.handleAwaiting(ctx, sender, sess, raw, text)
		return
	}
	switch sess.Mode {
	case ModeAdminPick:
		d.handleClubPick(ctx, sender, sess, text)
		return
	case ModeAdmin:
		if isMenuChoice(text) {
			d.handleAdminMenu(ctx, sender, sess, text)
			return
		}
	case ModeMember:
		if isMenuChoice(text) {
			d.handleMemberMenu(ctx, sender, sess, text)
			return
		}
	}
	if d.tryLegacyCommand(ctx, sender, sess, raw, text) {
		return
	}
	if sess.Mode == ModeRoot && isMenuChoice(text) {
		d.handleRootMenu(ctx, sender, sess, text)
		return
	}
	d.reply(ctx, sender, unknownInputText()+"\n\n"+rootMenuText(len(d.registry.AdminClubs(sender)) > 0))
}

// tryOfferReply consumes 1/2/3 and acepto/rechazo when the sender holds
// a live offer somewhere. Offer replies never depend on menu state.
func (d *Dispatcher) tryOfferReply(ctx context.Context, sender, text string) bool {
	var action func(context.Context, *tenant.Context, string) error
	switch text {
	case "1", "acepto", "si", "sí":
		action = d.engine.Accept
	case "2", "rechazo", "no":
		action = d.engine.Reject
	case "3", "mas tarde", "luego":
		action = d.engine.Defer
	default:
		return false
	}
	t, ok := d.registry.PendingOfferClub(sender)
	if !ok {
		return false
	}
	if err := action(ctx, t, sender); err != nil {
		d.replyErr(ctx, sender, err)
	}
	return true
}

// handleAwaiting resolves a free-text prompt. Raw text is used so names
// keep their casing and accents.
func (d *Dispatcher) handleAwaiting(ctx context.Context, sender string, sess *Session, raw, text string) {
	if text == "0" || text == "cancelar" {
		sess.Awaiting = AwaitNone
		d.sessions.Put(sender, sess)
		d.reply(ctx, sender, adminMenuText(sess.ClubID))
		return
	}
	t, ok := d.tenantFor(ctx, sender, sess)
	if !ok {
		return
	}

	awaiting := sess.Awaiting
	sess.Awaiting = AwaitNone
	d.sessions.Put(sender, sess)

	switch awaiting {
	case AwaitAddMember:
		name, id, err := parseMemberLine(raw)
		if err == nil {
			err = d.engine.AddMember(ctx, t, sender, name, id)
		}
		if err != nil {
			d.replyErr(ctx, sender, err)
			return
		}
	case AwaitRemoveMember:
		if err := d.engine.RemoveMember(ctx, t, sender, raw); err != nil {
			d.replyErr(ctx, sender, err)
			return
		}
	}
	d.reply(ctx, sender, adminMenuText(sess.ClubID))
}

func (d *Dispatcher) handleClubPick(ctx context.Context, sender string, sess *Session, text string) {
	if text == "0" || text == "cancelar" {
		d.sessions.Reset(sender, sess)
		d.reply(ctx, sender, rootMenuText(true))
		return
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 || n > len(sess.PickOrder) {
		d.reply(ctx, sender, clubPickText(sess.PickOrder))
		return
	}
	sess.ClubID = sess.PickOrder[n-1]
	sess.Mode = ModeAdmin
	sess.PickOrder = nil
	d.sessions.Put(sender, sess)
	d.reply(ctx, sender, adminMenuText(sess.ClubID))
}

func (d *Dispatcher) handleAdminMenu(ctx context.Context, sender string, sess *Session, choice string) {
	if choice == "0" {
		d.sessions.Reset(sender, sess)
		d.reply(ctx, sender, rootMenuText(true))
		return
	}
	t, ok := d.tenantFor(ctx, sender, sess)
	if !ok {
		return
	}
	switch choice {
	case "1":
		if err := d.engine.StartRound(ctx, t, sender); err != nil {
			d.replyErr(ctx, sender, err)
		}
	case "2":
		text, err := d.engine.Status(t, sender)
		d.replyQuery(ctx, sender, text, err)
	case "3":
		if err := d.engine.Cancel(ctx, t, sender); err != nil {
			d.replyErr(ctx, sender, err)
		}
	case "4":
		if err := d.engine.Reset(ctx, t, sender); err != nil {
			d.replyErr(ctx, sender, err)
		}
	case "5":
		text, err := d.engine.MembersList(t, sender)
		d.replyQuery(ctx, sender, text, err)
	case "6":
		sess.Awaiting = AwaitAddMember
		d.sessions.Put(sender, sess)
		d.reply(ctx, sender, addMemberPrompt())
	case "7":
		sess.Awaiting = AwaitRemoveMember
		d.sessions.Put(sender, sess)
		d.reply(ctx, sender, removeMemberPrompt())
	default:
		d.reply(ctx, sender, adminMenuText(sess.ClubID))
	}
}

func (d *Dispatcher) handleRootMenu(ctx context.Context, sender string, sess *Session, choice string) {
	admin := len(d.registry.AdminClubs(sender)) > 0
	switch {
	case choice == "1":
		sess.Mode = ModeMember
		d.sessions.Put(sender, sess)
		d.reply(ctx, sender, memberMenuText())
	case choice == "2" && admin:
		d.enterAdminMenu(ctx, sender, sess)
	default:
		// Numbers the menu did not render, including the admin option
		// for non-admins, just re-show the menu.
		d.reply(ctx, sender, rootMenuText(admin))
	}
}

func (d *Dispatcher) handleMemberMenu(ctx context.Context, sender string, sess *Session, choice string) {
	switch choice {
	case "0":
		d.sessions.Reset(sender, sess)
		d.reply(ctx, sender, rootMenuText(len(d.registry.AdminClubs(sender)) > 0))
	case "1":
		t, ok := d.tenantFor(ctx, sender, sess)
		if !ok {
			return
		}
		text, err := d.engine.WhoAmI(t, sender)
		d.replyQuery(ctx, sender, text, err)
	case "2":
		t, ok := d.tenantFor(ctx, sender, sess)
		if !ok {
			return
		}
		text, err := d.engine.RoundSummary(t)
		d.replyQuery(ctx, sender, text, err)
	default:
		d.reply(ctx, sender, memberMenuText())
	}
}

// tryLegacyCommand keeps the original keyword interface alive alongside
// the menus. Returns true when the input was consumed.
func (d *Dispatcher) tryLegacyCommand(ctx context.Context, sender string, sess *Session, raw, text string) bool {
	switch {
	case text == "hola" || text == "hi" || text == "hello" || text == "menu" || text == "inicio":
		d.sessions.Reset(sender, sess)
		d.reply(ctx, sender, rootMenuText(len(d.registry.AdminClubs(sender)) > 0))
	case text == "iniciar":
		if t, ok := d.tenantFor(ctx, sender, sess); ok {
			if err := d.engine.StartRound(ctx, t, sender); err != nil {
				d.replyErr(ctx, sender, err)
			}
		}
	case text == "estado":
		if t, ok := d.tenantFor(ctx, sender, sess); ok {
			status, err := d.engine.Status(t, sender)
			d.replyQuery(ctx, sender, status, err)
		}
	case text == "cancelar":
		if t, ok := d.tenantFor(ctx, sender, sess); ok {
			if err := d.engine.Cancel(ctx, t, sender); err != nil {
				d.replyErr(ctx, sender, err)
			}
		}
	case text == "reset":
		if t, ok := d.tenantFor(ctx, sender, sess); ok {
			if err := d.engine.Reset(ctx, t, sender); err != nil {
				d.replyErr(ctx, sender, err)
			}
		}
	case text == "miembros" || text == "socios":
		if t, ok := d.tenantFor(ctx, sender, sess); ok {
			list, err := d.engine.MembersList(t, sender)
			d.replyQuery(ctx, sender, list, err)
		}
	case text == "mi rol":
		if t, ok := d.tenantFor(ctx, sender, sess); ok {
			role, err := d.engine.WhoAmI(t, sender)
			d.replyQuery(ctx, sender, role, err)
		}
	case text == "resumen":
		if t, ok := d.tenantFor(ctx, sender, sess); ok {
			summary, err := d.engine.RoundSummary(t)
			d.replyQuery(ctx, sender, summary, err)
		}
	case text == "acepto" || text == "rechazo":
		// No live offer (tryOfferReply ran first).
		d.replyErr(ctx, sender, round.ErrNoPendingOffer)
	case strings.HasPrefix(text, "agregar "):
		if t, ok := d.tenantFor(ctx, sender, sess); ok {
			name, id, err := parseMemberLine(argAfter(raw, "agregar"))
			if err == nil {
				err = d.engine.AddMember(ctx, t, sender, name, id)
			}
			if err != nil {
				d.replyErr(ctx, sender, err)
			}
		}
	case strings.HasPrefix(text, "eliminar "):
		if t, ok := d.tenantFor(ctx, sender, sess); ok {
			if err := d.engine.RemoveMember(ctx, t, sender, argAfter(raw, "eliminar")); err != nil {
				d.replyErr(ctx, sender, err)
			}
		}
	default:
		return false
	}
	return true
}

func (d *Dispatcher) enterAdminMenu(ctx context.Context, sender string, sess *Session) {
	clubs := d.registry.AdminClubs(sender)
	switch {
	case len(clubs) == 0:
		d.replyErr(ctx, sender, round.ErrUnauthorized)
	case len(clubs) == 1 || sess.ClubID != "":
		if sess.ClubID == "" {
			sess.ClubID = clubs[0]
		}
		sess.Mode = ModeAdmin
		d.sessions.Put(sender, sess)
		d.reply(ctx, sender, adminMenuText(sess.ClubID))
	default:
		sess.Mode = ModeAdminPick
		sess.PickOrder = clubs
		d.sessions.Put(sender, sess)
		d.reply(ctx, sender, clubPickText(clubs))
	}
}

// tenantFor resolves the sender's club, binding it into the session on
// success. When the sender administers several clubs it switches to the
// pick menu instead, and reports unknown senders directly.
func (d *Dispatcher) tenantFor(ctx context.Context, sender string, sess *Session) (*tenant.Context, bool) {
	clubID, res := d.registry.InferTenant(sender, sess.ClubID)
	switch res {
	case tenant.Resolved:
		if sess.ClubID != clubID {
			sess.ClubID = clubID
			d.sessions.Put(sender, sess)
		}
		t, _ := d.registry.Get(clubID)
		return t, true
	case tenant.NeedsPick:
		sess.Mode = ModeAdminPick
		sess.PickOrder = d.registry.AdminClubs(sender)
		d.sessions.Put(sender, sess)
		d.reply(ctx, sender, clubPickText(sess.PickOrder))
	default:
		d.reply(ctx, sender, unknownSenderText())
	}
	return nil, false
}

func (d *Dispatcher) reply(ctx context.Context, dest, text string) {
	if err := d.sender.Send(ctx, bus.OutboundMessage{Destination: dest, Text: text}); err != nil {
		d.log.Warn("router.send_failed", "destination", dest, "error", err)
	}
}

func (d *Dispatcher) replyQuery(ctx context.Context, dest string, text string, err error) {
	if err != nil {
		d.replyErr(ctx, dest, err)
		return
	}
	d.reply(ctx, dest, text)
}

func (d *Dispatcher) replyErr(ctx context.Context, dest string, err error) {
	kind := classify(err)
	if kind == errOther {
		d.log.Error("router.command_failed", "destination", dest, "error", err)
	}
	d.reply(ctx, dest, errorText(err, kind))
}

// parseMemberLine splits "Nombre Apellido, 5215512345678" into its parts.
func parseMemberLine(line string) (name, id string, err error) {
	parts := strings.SplitN(line, ",", 2)
	if len(parts) != 2 {
		return "", "", round.ErrInvalidID
	}
	name = strings.TrimSpace(parts[0])
	id = strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, parts[1])
	if name == "" || id == "" {
		return "", "", round.ErrInvalidID
	}
	return name, id, nil
}

// argAfter strips the leading keyword from the raw text, case-insensitive.
func argAfter(raw, keyword string) string {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) <= len(keyword) {
		return ""
	}
	if !strings.EqualFold(trimmed[:len(keyword)], keyword) {
		// Keyword matched on the normalized form; fall back to the first
		// space split so accented variants still work.
		if i := strings.IndexByte(trimmed, ' '); i >= 0 {
			return strings.TrimSpace(trimmed[i+1:])
		}
		return ""
	}
	return strings.TrimSpace(trimmed[len(keyword):])
}
