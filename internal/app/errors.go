package app

import "errors"

// Sentinel errors mapped to HTTP statuses at the handler boundary.
// User-facing messages stay in Spanish; the web UI shows them verbatim.
var (
	ErrNotFound           = errors.New("recurso no encontrado")
	ErrDuplicateName      = errors.New("ya existe un proyecto con este nombre")
	ErrEmailTaken         = errors.New("ya existe una cuenta con este correo")
	ErrInvalidCredentials = errors.New("credenciales invalidas")
	ErrEmptyMessage       = errors.New("el mensaje no puede estar vacio")
	ErrNotImage           = errors.New("solo se permiten archivos de imagen")
	ErrNoCases            = errors.New("el proyecto no tiene casos de prueba generados")
)
