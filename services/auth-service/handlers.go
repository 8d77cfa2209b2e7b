package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"civic-complaints-portal/pkg/config"
	"civic-complaints-portal/pkg/database"
	"civic-complaints-portal/pkg/middleware"
	"civic-complaints-portal/pkg/password"
	"civic-complaints-portal/pkg/response"
	"civic-complaints-portal/pkg/token"
	"civic-complaints-portal/services/auth-service/models"

	"gorm.io/gorm"
)

var (
	db     *gorm.DB
	cfg    *config.Config
	tokens *token.Service
	hasher *password.Hasher
	engine *otpEngine
)

var (
	phoneRegex = regexp.MustCompile(`^\d{10}$`)
	otpRegex   = regexp.MustCompile(`^\d{6}$`)
)

func isValidPassword(pw string) (bool, string) {
	if len(pw) < 8 {
		return false, "Password must be at least 8 characters"
	}
	if len(pw) > 100 {
		return false, "Password too long"
	}
	return true, ""
}

// citizenSignupHandler creates (or refreshes) an unverified citizen and
// kicks off OTP delivery. A verified phone signing up again is a
// conflict; an unverified one gets its name, password and code
// replaced, so an abandoned signup can be retried.
func citizenSignupHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var input struct {
		Name     string `json:"name"`
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", "")
		return
	}

	input.Name = strings.TrimSpace(input.Name)
	if len(input.Name) < 2 {
		response.Error(w, http.StatusBadRequest, "Valid name is required", "")
		return
	}
	if !phoneRegex.MatchString(input.Phone) {
		response.Error(w, http.StatusBadRequest, "Phone must be 10 digits", "")
		return
	}
	if valid, msg := isValidPassword(input.Password); !valid {
		response.Error(w, http.StatusBadRequest, msg, "")
		return
	}

	hashed, err := hasher.Hash(input.Password)
	if err != nil {
		middleware.LogError(middleware.GetTraceID(r), "Failed to hash password", err)
		response.ServerError(w, "Failed to process signup")
		return
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		var existing models.Citizen
		findErr := tx.Where("phone = ?", input.Phone).First(&existing).Error
		switch {
		case findErr == nil:
			if existing.Verified {
				return ErrAlreadyVerified
			}
			return tx.Model(&existing).Updates(map[string]interface{}{
				"name":     input.Name,
				"password": hashed,
				"verified": false,
			}).Error
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			return tx.Create(&models.Citizen{
				Name:     input.Name,
				Phone:    input.Phone,
				Password: hashed,
			}).Error
		default:
			return findErr
		}
	})
	if err != nil {
		// A concurrent signup that won the unique-constraint race is
		// reported the same way as an existing verified phone.
		if errors.Is(err, ErrAlreadyVerified) || database.IsDuplicateKey(err) {
			response.Error(w, http.StatusConflict, "Phone already registered and verified", "")
			return
		}
		middleware.LogError(middleware.GetTraceID(r), "Failed to save citizen", err)
		response.ServerError(w, "Failed to save signup")
		return
	}

	if err := engine.Issue(input.Phone); err != nil {
		middleware.LogError(middleware.GetTraceID(r), "Failed to issue OTP", err)
		response.ServerError(w, "Failed to send verification code")
		return
	}

	middleware.LogInfo(middleware.GetTraceID(r), "Citizen signup initiated")
	response.Success(w, http.StatusOK, "Signup initiated. OTP sent to your phone.", map[string]interface{}{
		"phone": input.Phone,
	})
}

func citizenVerifyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var input struct {
		Phone string `json:"phone"`
		OTP   string `json:"otp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", "")
		return
	}
	if !phoneRegex.MatchString(input.Phone) || !otpRegex.MatchString(input.OTP) {
		response.Error(w, http.StatusBadRequest, "Invalid phone or OTP format", "")
		return
	}

	switch err := engine.Validate(input.Phone, input.OTP); {
	case err == nil:
		response.Success(w, http.StatusOK, "Phone verified successfully", nil)
	case errors.Is(err, ErrAlreadyVerified):
		// Idempotent: re-verifying a verified phone is not an error.
		response.Success(w, http.StatusOK, "Already verified", nil)
	case errors.Is(err, ErrCitizenNotFound):
		response.Error(w, http.StatusNotFound, "User not found", "")
	case errors.Is(err, ErrNoActiveCode):
		response.Error(w, http.StatusBadRequest, "No OTP found. Please resend.", "")
	case errors.Is(err, ErrOTPExpired):
		response.Error(w, http.StatusGone, "OTP expired. Please resend.", "")
	case errors.Is(err, ErrOTPMismatch):
		response.Error(w, http.StatusUnauthorized, "Incorrect OTP", "")
	default:
		middleware.LogError(middleware.GetTraceID(r), "OTP validation failed", err)
		response.ServerError(w, "Failed to verify OTP")
	}
}

func citizenResendHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var input struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", "")
		return
	}
	if !phoneRegex.MatchString(input.Phone) {
		response.Error(w, http.StatusBadRequest, "Invalid phone", "")
		return
	}

	switch err := engine.Resend(input.Phone); {
	case err == nil:
		response.Success(w, http.StatusOK, "OTP resent", nil)
	case errors.Is(err, ErrCitizenNotFound):
		response.Error(w, http.StatusNotFound, "User not found", "")
	case errors.Is(err, ErrAlreadyVerified):
		response.Error(w, http.StatusConflict, "Already verified", "")
	case errors.Is(err, ErrResendTooSoon):
		response.Error(w, http.StatusTooManyRequests, "Please wait a minute before resending.", "")
	default:
		middleware.LogError(middleware.GetTraceID(r), "OTP resend failed", err)
		response.ServerError(w, "Failed to resend OTP")
	}
}

// citizenLoginHandler never distinguishes an unknown phone from a
// wrong password; both produce the same generic failure.
func citizenLoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var input struct {
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", "")
		return
	}
	if !phoneRegex.MatchString(input.Phone) {
		response.Error(w, http.StatusBadRequest, "Phone must be 10 digits", "")
		return
	}
	if input.Password == "" {
		response.Error(w, http.StatusBadRequest, "Password is required", "")
		return
	}

	var citizen models.Citizen
	err := db.Where("phone = ?", input.Phone).First(&citizen).Error
	if err != nil || !hasher.Check(input.Password, citizen.Password) {
		response.Error(w, http.StatusUnauthorized, "Invalid phone or password", "")
		return
	}

	if !citizen.Verified {
		response.Error(w, http.StatusForbidden, "Please verify OTP first", "")
		return
	}

	signed, err := tokens.Issue(citizen.ID, citizen.Name, token.RoleCitizen)
	if err != nil {
		middleware.LogError(middleware.GetTraceID(r), "Failed to issue token", err)
		response.ServerError(w, "Failed to generate token")
		return
	}

	response.Success(w, http.StatusOK, "Login success", map[string]interface{}{
		"id":    citizen.ID,
		"token": signed,
		"name":  citizen.Name,
		"phone": citizen.Phone,
		"role":  token.RoleCitizen,
	})
}

func citizenMeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}
	claims, ok := middleware.ClaimsFrom(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	var citizen models.Citizen
	if err := db.First(&citizen, "id = ?", claims.UserID).Error; err != nil {
		response.Error(w, http.StatusNotFound, "User not found", "")
		return
	}

	response.Success(w, http.StatusOK, "Profile fetched", map[string]interface{}{
		"id":       citizen.ID,
		"name":     citizen.Name,
		"phone":    citizen.Phone,
		"verified": citizen.Verified,
		"role":     token.RoleCitizen,
	})
}

func citizenProfileHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}
	claims, ok := middleware.ClaimsFrom(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	var input struct {
		Name     *string `json:"name"`
		Password *string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", "")
		return
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if len(name) < 2 {
			response.Error(w, http.StatusBadRequest, "Valid name is required", "")
			return
		}
		updates["name"] = name
	}
	if input.Password != nil {
		if valid, msg := isValidPassword(*input.Password); !valid {
			response.Error(w, http.StatusBadRequest, msg, "")
			return
		}
		hashed, err := hasher.Hash(*input.Password)
		if err != nil {
			middleware.LogError(middleware.GetTraceID(r), "Failed to hash password", err)
			response.ServerError(w, "Failed to update profile")
			return
		}
		updates["password"] = hashed
	}
	if len(updates) == 0 {
		response.Error(w, http.StatusBadRequest, "Nothing to update", "")
		return
	}

	result := db.Model(&models.Citizen{}).Where("id = ?", claims.UserID).Updates(updates)
	if result.Error != nil {
		middleware.LogError(middleware.GetTraceID(r), "Failed to update citizen", result.Error)
		response.ServerError(w, "Failed to update profile")
		return
	}
	if result.RowsAffected == 0 {
		response.Error(w, http.StatusNotFound, "User not found", "")
		return
	}

	response.Success(w, http.StatusOK, "Profile updated", nil)
}

func adminSignupHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var input struct {
		Name       string `json:"name"`
		EmpID      string `json:"emp_id"`
		Department string `json:"department"`
		District   string `json:"district"`
		Phone      string `json:"phone"`
		Password   string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", "")
		return
	}

	input.Name = strings.TrimSpace(input.Name)
	input.EmpID = strings.TrimSpace(input.EmpID)
	missing := []string{}
	if input.Name == "" {
		missing = append(missing, "name")
	}
	if input.EmpID == "" {
		missing = append(missing, "emp_id")
	}
	if input.Phone == "" {
		missing = append(missing, "phone")
	}
	if input.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		response.Error(w, http.StatusBadRequest, "Missing required fields", strings.Join(missing, ", "))
		return
	}
	if valid, msg := isValidPassword(input.Password); !valid {
		response.Error(w, http.StatusBadRequest, msg, "")
		return
	}

	hashed, err := hasher.Hash(input.Password)
	if err != nil {
		middleware.LogError(middleware.GetTraceID(r), "Failed to hash password", err)
		response.ServerError(w, "Failed to process signup")
		return
	}

	admin := models.Admin{
		Name:       input.Name,
		EmpID:      input.EmpID,
		Department: input.Department,
		District:   input.District,
		Phone:      input.Phone,
		Password:   hashed,
	}
	// No pre-check: the unique constraint on emp_id is the authority,
	// so two concurrent signups cannot both get through.
	if err := db.Create(&admin).Error; err != nil {
		if database.IsDuplicateKey(err) {
			response.Error(w, http.StatusConflict, "Employee ID already registered", "")
			return
		}
		middleware.LogError(middleware.GetTraceID(r), "Failed to save admin", err)
		response.ServerError(w, "Failed to save admin")
		return
	}

	middleware.LogInfo(middleware.GetTraceID(r), "Admin registered")
	response.Success(w, http.StatusCreated, "Admin registered successfully", map[string]interface{}{
		"id": admin.ID,
	})
}

// adminLoginHandler accepts either the employee id or a phone number
// as the identifier. The token goes out both in the body and as an
// HttpOnly cookie for browser clients.
func adminLoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}

	var input struct {
		EmpID    string `json:"emp_id"`
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", "")
		return
	}

	identifier := strings.TrimSpace(input.EmpID)
	if identifier == "" {
		identifier = strings.TrimSpace(input.Phone)
	}
	if identifier == "" || input.Password == "" {
		response.Error(w, http.StatusBadRequest, "Identifier and password are required", "")
		return
	}

	var admin models.Admin
	err := db.Where("emp_id = ?", identifier).First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = db.Where("phone = ?", identifier).First(&admin).Error
	}
	if err != nil || !hasher.Check(input.Password, admin.Password) {
		response.Error(w, http.StatusUnauthorized, "Invalid credentials", "")
		return
	}

	signed, err := tokens.Issue(admin.ID, admin.Name, token.RoleAdmin)
	if err != nil {
		middleware.LogError(middleware.GetTraceID(r), "Failed to issue token", err)
		response.ServerError(w, "Failed to generate token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(tokens.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	response.Success(w, http.StatusOK, "Login successful", map[string]interface{}{
		"id":         admin.ID,
		"token":      signed,
		"name":       admin.Name,
		"emp_id":     admin.EmpID,
		"department": admin.Department,
		"district":   admin.District,
		"role":       token.RoleAdmin,
	})
}

func adminMeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}
	claims, ok := middleware.ClaimsFrom(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	var admin models.Admin
	if err := db.First(&admin, "id = ?", claims.UserID).Error; err != nil {
		response.Error(w, http.StatusNotFound, "Admin not found", "")
		return
	}

	response.Success(w, http.StatusOK, "Profile fetched", map[string]interface{}{
		"id":         admin.ID,
		"name":       admin.Name,
		"emp_id":     admin.EmpID,
		"department": admin.Department,
		"district":   admin.District,
		"phone":      admin.Phone,
		"role":       token.RoleAdmin,
	})
}

func adminProfileHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "")
		return
	}
	claims, ok := middleware.ClaimsFrom(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	var input struct {
		Name       *string `json:"name"`
		Department *string `json:"department"`
		District   *string `json:"district"`
		Phone      *string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload", "")
		return
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if len(name) < 2 {
			response.Error(w, http.StatusBadRequest, "Valid name is required", "")
			return
		}
		updates["name"] = name
	}
	if input.Department != nil {
		department := strings.TrimSpace(*input.Department)
		if department == "" {
			response.Error(w, http.StatusBadRequest, "Department cannot be empty", "")
			return
		}
		updates["department"] = department
	}
	if input.District != nil {
		district := strings.TrimSpace(*input.District)
		if district == "" {
			response.Error(w, http.StatusBadRequest, "District cannot be empty", "")
			return
		}
		updates["district"] = district
	}
	if input.Phone != nil {
		phone := strings.TrimSpace(*input.Phone)
		if !phoneRegex.MatchString(phone) {
			response.Error(w, http.StatusBadRequest, "Valid 10-digit phone number is required", "")
			return
		}
		updates["phone"] = phone
	}
	if len(updates) == 0 {
		response.Error(w, http.StatusBadRequest, "Nothing to update", "")
		return
	}

	if err := db.Model(&models.Admin{}).Where("id = ?", claims.UserID).Updates(updates).Error; err != nil {
		middleware.LogError(middleware.GetTraceID(r), "Failed to update admin", err)
		response.ServerError(w, "Failed to update profile")
		return
	}

	var admin models.Admin
	if err := db.First(&admin, "id = ?", claims.UserID).Error; err != nil {
		response.Error(w, http.StatusNotFound, "Admin not found", "")
		return
	}

	response.Success(w, http.StatusOK, "Profile updated", map[string]interface{}{
		"id":         admin.ID,
		"name":       admin.Name,
		"emp_id":     admin.EmpID,
		"department": admin.Department,
		"district":   admin.District,
		"phone":      admin.Phone,
	})
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "UP",
		"service": "auth-service",
	}

	sqlDB, err := db.DB()
	if err != nil || sqlDB.Ping() != nil {
		health["status"] = "DOWN"
		health["database"] = "disconnected"
		response.JSON(w, http.StatusServiceUnavailable, health)
		return
	}
	health["database"] = "connected"
	response.JSON(w, http.StatusOK, health)
}
