// import_credential importa una credencial CSID emitida fuera del flujo de
// registro (certificado + clave EC en un archivo .p12/.pfx) y la emite como
// JSON, lista para cargarse en un dispositivo.
//
// Uso: go run ./cmd/import_credential [ruta.p12] [password] [secret]
// Los argumentos omitidos se toman de ZATCA_P12_PATH, ZATCA_P12_PASSWORD y
// ZATCA_P12_SECRET (entorno o .env).
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jhoicas/zatca-api/internal/infrastructure/zatca/signer"
	"github.com/jhoicas/zatca-api/pkg/config"
)

type importedCredential struct {
	SecurityToken string `json:"security_token"`
	Secret        string `json:"secret,omitempty"`
	PrivateKeyPEM string `json:"private_key_pem"`
	Subject       string `json:"subject"`
	Issuer        string `json:"issuer"`
	SerialNumber  string `json:"serial_number"`
	NotAfter      string `json:"not_after"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargar configuración: %v\n", err)
		os.Exit(1)
	}

	// Los argumentos de línea de comandos tienen prioridad sobre el entorno.
	path, password, secret := cfg.Zatca.P12Path, cfg.Zatca.P12Password, cfg.Zatca.P12Secret
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if len(os.Args) > 2 {
		password = os.Args[2]
	}
	if len(os.Args) > 3 {
		secret = os.Args[3]
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "uso: import_credential [ruta.p12] [password] [secret] (o ZATCA_P12_PATH en el entorno)")
		os.Exit(1)
	}

	cred, err := signer.LoadFromP12(path, password, secret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "importar p12: %v\n", err)
		os.Exit(1)
	}

	// Verificación de ida y vuelta: el token importado debe parsear igual que
	// uno emitido por la pasarela.
	cert, _, err := signer.ParseSecurityToken(cred.SecurityToken)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verificar token importado: %v\n", err)
		os.Exit(1)
	}

	out := importedCredential{
		SecurityToken: cred.SecurityToken,
		Secret:        cred.Secret,
		PrivateKeyPEM: cred.PrivateKeyPEM,
		Subject:       cert.Subject.String(),
		Issuer:        cert.Issuer.String(),
		SerialNumber:  cert.SerialNumber.String(),
		NotAfter:      cert.NotAfter.Format("2006-01-02"),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "serializar salida: %v\n", err)
		os.Exit(1)
	}
}
