package services

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"whatsapp-web-bot/config"
	"whatsapp-web-bot/internal/utils"
)

// S3Service arquiva fotos de perfil no S3. As URLs do CDN do WhatsApp
// expiram, então o avatar é copiado para um bucket próprio logo após a
// extração de perfil.
type S3Service struct {
	s3Client *s3.S3
	httpc    *http.Client
	config   *config.S3Config
}

func NewS3Service(cfg *config.S3Config) (*S3Service, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("erro ao criar sessão do S3: %v", err)
	}

	return &S3Service{
		s3Client: s3.New(sess),
		httpc:    &http.Client{Timeout: 30 * time.Second},
		config:   cfg,
	}, nil
}

// ArchiveAvatar baixa a foto de perfil da URL efêmera e sobe para o bucket.
// Devolve a URL permanente. Avatares raspados como data URL são
// decodificados localmente, sem download.
func (s *S3Service) ArchiveAvatar(sessionID, avatarURL string) (string, error) {
	if mime := utils.GetMimeFromDataURL(avatarURL); mime != "" {
		idx := strings.Index(avatarURL, ",")
		if idx < 0 {
			return "", fmt.Errorf("data URL de avatar malformada")
		}
		data, err := base64.StdEncoding.DecodeString(avatarURL[idx+1:])
		if err != nil {
			return "", fmt.Errorf("erro ao decodificar avatar: %v", err)
		}
		key := fmt.Sprintf("avatars/%s.%s", sessionID, utils.GetExtensionFromMime(mime))
		return s.UploadBytes(data, key, mime)
	}

	resp, err := s.httpc.Get(avatarURL)
	if err != nil {
		return "", fmt.Errorf("erro ao baixar avatar: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("erro ao baixar avatar: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("erro ao ler avatar: %v", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	key := fmt.Sprintf("avatars/%s.%s", sessionID, utils.GetExtensionFromMime(contentType))
	return s.UploadBytes(data, key, contentType)
}

func (s *S3Service) UploadBytes(data []byte, fileName string, contentType string) (string, error) {
	utils.LogInfo("Iniciando upload para S3: %s", fileName)

	params := &s3.PutObjectInput{
		Bucket:      aws.String(s.config.BucketName),
		Key:         aws.String(fileName),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}

	_, err := s.s3Client.PutObject(params)
	if err != nil {
		return "", fmt.Errorf("erro ao fazer upload para S3: %v", err)
	}

	fileUrl := fmt.Sprintf("%s/%s", s.config.BucketUrl, fileName)
	utils.LogInfo("Upload concluído: %s", fileUrl)
	return fileUrl, nil
}
