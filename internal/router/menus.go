package router

import (
	"fmt"
	"strings"
)

func rootMenuText(admin bool) string {
	lines := []string{
		"👋 ¡Hola! Soy el bot de roles del club.",
		"",
		"Escribe el número de una opción:",
		"*1* Menú de socio",
	}
	if admin {
		lines = append(lines, "*2* Menú de administración")
	}
	return strings.Join(lines, "\n")
}

func memberMenuText() string {
	return strings.Join([]string{
		"👤 Menú de socio:",
		"",
		"*1* Ver mi rol",
		"*2* Resumen de la ronda",
		"*0* Volver al inicio",
	}, "\n")
}

func adminMenuText(clubID string) string {
	return strings.Join([]string{
		fmt.Sprintf("🔧 Administración de *%s*:", clubID),
		"",
		"*1* Iniciar ronda",
		"*2* Estado de la ronda",
		"*3* Cancelar ronda",
		"*4* Reiniciar asignaciones y ciclos",
		"*5* Ver socios",
		"*6* Agregar socio",
		"*7* Eliminar socio",
		"*0* Volver al inicio",
	}, "\n")
}

func clubPickText(clubs []string) string {
	lines := []string{"Administras varios clubes. ¿Cuál quieres gestionar?", ""}
	for i, id := range clubs {
		lines = append(lines, fmt.Sprintf("*%d* %s", i+1, id))
	}
	lines = append(lines, "*0* Cancelar")
	return strings.Join(lines, "\n")
}

func addMemberPrompt() string {
	return "Escribe el nuevo socio como *Nombre, número*.\nEjemplo: María Pérez, 5215512345678\n(*0* para cancelar)"
}

func removeMemberPrompt() string {
	return "Escribe el número o el nombre del socio a eliminar.\n(*0* para cancelar)"
}

func unknownSenderText() string {
	return "No encuentro tu número en ningún club. 🙏 Pide a tu administrador que te registre."
}

func unknownInputText() string {
	return "No entendí ese mensaje. 🤔 Puedes escribir HOLA, MI ROL, ACEPTO o RECHAZO."
}

func maintenanceText() string {
	return "⚠️ El club está en mantenimiento, inténtalo más tarde."
}

func errorText(err error, kind errKind) string {
	switch kind {
	case errUnauthorized:
		return "⛔ Esta acción es solo para administradores."
	case errRoundInProgress:
		return "⚠️ Ya hay una ronda en curso. Usa ESTADO para verla o CANCELAR para abortarla."
	case errNoPendingOffer:
		return "No tienes ninguna propuesta pendiente ahora mismo."
	case errMemberNotFound:
		return "No encontré ese socio. Usa la opción *5* para ver la lista."
	case errMemberBusy:
		return "⚠️ Ese socio tiene un rol propuesto o aceptado en la ronda actual. Cancela o reinicia la ronda primero."
	case errDuplicateMember:
		return "⚠️ Ya existe un socio con ese número."
	case errInvalidMember:
		return "Formato no válido. Escribe *Nombre, número* (solo dígitos, ej. 5215512345678)."
	case errCorrupt:
		return maintenanceText()
	default:
		return fmt.Sprintf("⚠️ Ocurrió un error: %v", err)
	}
}
