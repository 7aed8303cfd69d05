package models

// Role - роль пользователя. Назначается при регистрации вне этого сервиса.
type Role string

const (
	RoleResident Role = "resident"
	RoleAdmin    Role = "admin"
)

// ParseRole разбирает роль из токена. Пустая роль означает жителя.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case "", RoleResident:
		return RoleResident, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// Identity - вызывающий пользователь, полученный из проверенного токена
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// IsZero сообщает, что личность не была установлена
func (i Identity) IsZero() bool {
	return i.UserID == ""
}

// IsAdmin сообщает, есть ли у пользователя права администратора
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanMutate - единственное правило авторизации для изменения и удаления:
// алерт может менять только его автор или администратор.
func CanMutate(identity Identity, alert *Alert) bool {
	if identity.IsZero() || alert == nil {
		return false
	}
	return identity.UserID == alert.OwnerID || identity.IsAdmin()
}
