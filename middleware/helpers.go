package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/bestwork/mlm-system/models"
	"github.com/golang-jwt/jwt/v4"
)

const (
	jwtClaimMemberID = "member_id"
	jwtClaimRole     = "role"
)

func GetUserIDFromContext(ctx context.Context) (int, error) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	if !ok {
		return 0, errors.New("user claims not found in context")
	}

	idClaim, ok := claims[jwtClaimMemberID]
	if !ok {
		return 0, fmt.Errorf("missing %q claim in token", jwtClaimMemberID)
	}

	// JSON numbers decode as float64.
	idFloat, ok := idClaim.(float64)
	if !ok || idFloat != float64(int(idFloat)) {
		return 0, fmt.Errorf("invalid %q claim: %v", jwtClaimMemberID, idClaim)
	}

	id := int(idFloat)
	if id <= 0 {
		return 0, fmt.Errorf("invalid member ID in %q claim: %d", jwtClaimMemberID, id)
	}
	return id, nil
}

func GetUserRoleFromContext(ctx context.Context) (models.MemberRole, error) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	if !ok {
		return "", errors.New("user claims not found in context")
	}

	roleClaim, ok := claims[jwtClaimRole]
	if !ok {
		return "", fmt.Errorf("missing %q claim in token", jwtClaimRole)
	}
	roleStr, ok := roleClaim.(string)
	if !ok {
		return "", fmt.Errorf("invalid %q claim: %v", jwtClaimRole, roleClaim)
	}

	role := models.MemberRole(roleStr)
	if role != models.RoleMember && role != models.RoleAdmin {
		return "", fmt.Errorf("unknown role %q in token", roleStr)
	}
	return role, nil
}
