package round

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rolesclub/rolesbot/internal/catalog"
	"github.com/rolesclub/rolesbot/internal/state"
)

func offerText(name, role string, round int) string {
	return fmt.Sprintf("Hola %s 👋\n"+
		"Para la reunión #%d te propongo el rol *%s*.\n\n"+
		"Responde:\n"+
		"• *1* o *ACEPTO* para confirmar\n"+
		"• *2* o *RECHAZO* si no puedes\n"+
		"• *3* para responder más tarde\n\n"+
		"(Si rechazas, se propondrá a otro miembro.)", name, round, role)
}

func reofferText(name, role string, round int) string {
	return fmt.Sprintf("Hola %s 👋\n"+
		"¿Podrías tomar el rol *%s* para la reunión #%d?\n"+
		"Responde *1* (acepto), *2* (rechazo) o *3* (más tarde).", name, role, round)
}

func acceptedText(name, role string, round int) string {
	return fmt.Sprintf("🎉 ¡Gracias %s! Quedaste como *%s* en la reunión #%d.", name, role, round)
}

func rejectAck(role string) string {
	return fmt.Sprintf("Gracias por avisar, buscaremos otra opción para *%s* 👍", role)
}

func deferAck(role string) string {
	return fmt.Sprintf("De acuerdo, te esperamos. Sigues con el rol *%s* propuesto; responde *1* o *2* cuando decidas.", role)
}

func exhaustedNotice(role string) string {
	return fmt.Sprintf("⚠️ No hay candidato disponible para %s. Resolver manualmente.", role)
}

func roundStartedNotice(round int, by string) string {
	return fmt.Sprintf("✅ Ronda #%d iniciada por %s. Escribe ESTADO para ver pendientes.", round, by)
}

func canceledMemberNotice() string {
	return "⚠️ La ronda de roles fue *cancelada* por el administrador."
}

func canceledAdminNotice(round int, by string) string {
	return fmt.Sprintf("❌ Ronda #%d cancelada por %s.", round, by)
}

func resetNotice(by string) string {
	return fmt.Sprintf("🔄 Asignaciones y ciclos reiniciados por %s.", by)
}

func deliveryFailureNotice(failed int) string {
	return fmt.Sprintf("⚠️ %d mensaje(s) no se pudieron entregar. Las asignaciones ya quedaron guardadas.", failed)
}

// summaryText lists every role in catalog order with its holder, or
// (pendiente) while unresolved.
func summaryText(cat *catalog.Club, st *state.Round) string {
	lines := []string{fmt.Sprintf("🗓️ Reunión #%d – Roles asignados:", st.Round)}
	for _, role := range cat.Roles {
		if acc, ok := st.Accepted[role.Name]; ok {
			lines = append(lines, fmt.Sprintf("• %s: %s", role.Name, acc.Name))
		} else {
			lines = append(lines, fmt.Sprintf("• %s: (pendiente)", role.Name))
		}
	}
	return strings.Join(lines, "\n")
}

func summaryBroadcast(summary string) string {
	return fmt.Sprintf("✅ %s\n\n¡Nos vemos en la próxima reunión!", summary)
}

func statusText(cat *catalog.Club, st *state.Round) string {
	lines := []string{summaryText(cat, st), "", "Pendientes:"}
	anyPending := false
	for _, role := range sortedPendingNames(st.Pending) {
		offer := st.Pending[role]
		anyPending = true
		lines = append(lines, fmt.Sprintf("• %s: propuesto a %s (declinaron: %d)",
			role, displayName(cat, offer.Candidate), len(offer.DeclinedBy)))
	}
	if !anyPending {
		lines = append(lines, "• (ninguno)")
	}
	if st.Canceled {
		lines = append(lines, "", "Estado: ❌ Ronda cancelada.")
	}
	return strings.Join(lines, "\n")
}

func whoAmIPending(role string, round int) string {
	return fmt.Sprintf("Tienes pendiente el rol *%s* en la ronda #%d.\nResponde *1* (acepto) o *2* (rechazo).", role, round)
}

func whoAmIAccepted(role string, round int) string {
	return fmt.Sprintf("Ya aceptaste el rol *%s* en la ronda #%d.", role, round)
}

func whoAmINothing() string {
	return "No tienes asignaciones pendientes. Si esperas una propuesta, consulta al admin."
}

func memberAddedText(name, id string) string {
	return fmt.Sprintf("✅ Socio agregado: %s (%s), nivel 1.", name, id)
}

func memberRemovedText(name, id string) string {
	return fmt.Sprintf("✅ Socio eliminado: %s (%s).", name, id)
}

func sortedPendingNames(pending map[string]*state.PendingOffer) []string {
	names := make([]string, 0, len(pending))
	for n := range pending {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func sortedRoleNames(accepted map[string]state.AcceptedRole) []string {
	names := make([]string, 0, len(accepted))
	for n := range accepted {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
