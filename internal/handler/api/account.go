package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	reqdto "genflow/internal/handler/dto/request"
	resdto "genflow/internal/handler/dto/response"
	"genflow/internal/handler/httperr"
	"genflow/internal/pkg/errs"
	"genflow/internal/usecase/commands"
	"genflow/internal/usecase/queries"
)

type AccountHandler struct {
	accountCommands commands.AccountCommands
	accountQueries  queries.AccountQueries
}

func NewAccountHandler(accountCommands commands.AccountCommands, accountQueries queries.AccountQueries) *AccountHandler {
	return &AccountHandler{
		accountCommands: accountCommands,
		accountQueries:  accountQueries,
	}
}

// @Summary Credit account
// @Description Top up a balance; retries with the same ref apply once
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body reqdto.CreditRequest true "Credit request"
// @Success 200 {object} resdto.AccountResponse
// @Failure 400 {object} map[string]string
// @Router /accounts/{id}/credits [post]
func (h *AccountHandler) Credit(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	var req reqdto.CreditRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	account, err := h.accountCommands.Credit(c.Request.Context(), userID, req.Amount, req.Ref)
	if err != nil {
		if errors.Is(err, commands.ErrInvalidCreditAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Credit amount must be positive"})
			return
		}
		httperr.Internal(c, err)
		return
	}
	c.JSON(http.StatusOK, resdto.FromAccountRM(account))
}

// @Summary Get account
// @Description Get the available balance for a user
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} resdto.AccountResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /accounts/{id} [get]
func (h *AccountHandler) GetAccount(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	account, err := h.accountQueries.Get(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, errs.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
			return
		}
		httperr.Internal(c, err)
		return
	}
	c.JSON(http.StatusOK, resdto.FromAccountRM(account))
}
