package handlers

import (
	"campus-marketplace/internal/auth"
	"campus-marketplace/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// abort hands err to the error handler middleware
func abort(c *gin.Context, err error) {
	c.Error(err)
	c.Abort()
}

// uuidParam parses a path parameter, aborting with 400 when malformed
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		abort(c, errors.NewInvalidRequest("invalid "+name, "expected a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// currentUser returns the authenticated caller, aborting with 401 otherwise
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := auth.CurrentUserID(c)
	if !ok {
		abort(c, errors.NewUnauthorized("authentication required", ""))
		return uuid.Nil, false
	}
	return userID, true
}

// optionalUser returns the caller if a valid token was sent
func optionalUser(c *gin.Context) *uuid.UUID {
	userID, ok := auth.CurrentUserID(c)
	if !ok {
		return nil
	}
	return &userID
}
